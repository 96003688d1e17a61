package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// QuitKey leaves repl. Control-D is passed through because the board uses
// it for a soft reboot.
const QuitKey = 0x18 // Control-X

// translateKey maps host keystrokes to what the board's line editor expects.
func translateKey(c byte) []byte {
	switch c {
	case '\n':
		return []byte{'\r'}
	case '\b':
		return []byte{0x7f}
	}
	return []byte{c}
}

func (s *Shell) cmdRepl([]string) error {
	if s.Board == nil {
		return fmt.Errorf("repl: no board connected")
	}
	t := s.Board.Transport()
	fmt.Fprintln(s.out, "Entering REPL. Use Control-X to exit.")

	if f, ok := s.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		old, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("repl: raw terminal: %w", err)
		}
		defer term.Restore(int(f.Fd()), old)
	}

	var quit atomic.Bool
	var g errgroup.Group
	out := s.out
	// The reader polls quit at the transport's read timeout.
	g.Go(func() error {
		buf := make([]byte, 256)
		for !quit.Load() {
			n, err := t.Read(buf)
			if n > 0 {
				out.Write(buf[:n])
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
		return nil
	})

	// Wake up the prompt.
	_, werr := t.Write([]byte{'\r'})
	in := bufio.NewReader(s.In)
	for werr == nil {
		c, err := in.ReadByte()
		if err != nil {
			break
		}
		if c == QuitKey {
			break
		}
		_, werr = t.Write(translateKey(c))
	}
	quit.Store(true)

	err := g.Wait()
	fmt.Fprintln(s.out)
	s.log.Debug("left repl", zap.Error(err))
	if werr != nil {
		return werr
	}
	return err
}
