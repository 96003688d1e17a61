package tui

import (
	"strings"
	"unicode/utf8"
)

const defaultScrollback = 1000

type escState int

const (
	escNone escState = iota
	escStart
	escCSI
)

// Screen is a minimal terminal: it understands CR, LF, backspace, ESC c
// (reset) and ESC [ K (erase to end of line). Every other escape sequence is
// dropped. Lines beyond Scrollback are discarded from the top.
type Screen struct {
	Scrollback int

	lines   [][]rune
	col     int
	esc     escState
	csi     []byte
	partial []byte
}

func NewScreen() *Screen {
	return &Screen{Scrollback: defaultScrollback, lines: [][]rune{nil}}
}

// Write never fails.
func (s *Screen) Write(p []byte) (int, error) {
	data := p
	if len(s.partial) > 0 {
		data = append(s.partial, p...)
		s.partial = nil
	}
	for len(data) > 0 {
		b := data[0]
		if s.esc != escNone {
			s.escape(b)
			data = data[1:]
			continue
		}
		if b < utf8.RuneSelf {
			s.control(b)
			data = data[1:]
			continue
		}
		if !utf8.FullRune(data) {
			s.partial = append([]byte(nil), data...)
			break
		}
		r, size := utf8.DecodeRune(data)
		s.put(r)
		data = data[size:]
	}
	return len(p), nil
}

func (s *Screen) control(b byte) {
	switch b {
	case '\n':
		s.lines = append(s.lines, nil)
		s.col = 0
		if len(s.lines) > s.Scrollback {
			s.lines = s.lines[len(s.lines)-s.Scrollback:]
		}
	case '\r':
		s.col = 0
	case '\b':
		if s.col > 0 {
			s.col--
		}
	case 0x1b:
		s.esc = escStart
	case '\t':
		for {
			s.put(' ')
			if s.col%8 == 0 {
				break
			}
		}
	default:
		if b >= 0x20 && b != 0x7f {
			s.put(rune(b))
		}
	}
}

func (s *Screen) escape(b byte) {
	switch s.esc {
	case escStart:
		switch b {
		case '[':
			s.esc = escCSI
			s.csi = s.csi[:0]
			return
		case 'c':
			s.Reset()
		}
		s.esc = escNone
	case escCSI:
		if b >= 0x40 && b <= 0x7e {
			if b == 'K' {
				s.eraseLine(string(s.csi))
			}
			s.esc = escNone
			return
		}
		s.csi = append(s.csi, b)
	}
}

func (s *Screen) eraseLine(arg string) {
	line := s.lines[len(s.lines)-1]
	switch arg {
	case "", "0":
		if s.col < len(line) {
			s.lines[len(s.lines)-1] = line[:s.col]
		}
	case "2":
		s.lines[len(s.lines)-1] = nil
	}
}

func (s *Screen) put(r rune) {
	i := len(s.lines) - 1
	line := s.lines[i]
	for len(line) < s.col {
		line = append(line, ' ')
	}
	if s.col < len(line) {
		line[s.col] = r
	} else {
		line = append(line, r)
	}
	s.lines[i] = line
	s.col++
}

// Reset clears the screen.
func (s *Screen) Reset() {
	s.lines = [][]rune{nil}
	s.col = 0
}

// String returns the screen content, one line per row.
func (s *Screen) String() string {
	var b strings.Builder
	for i, l := range s.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(l))
	}
	return b.String()
}
