package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type keyMap struct {
	Run    key.Binding
	List   key.Binding
	Upload key.Binding
	Clear  key.Binding
	Enter  key.Binding
	Escape key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Run: key.NewBinding(
		key.WithKeys("ctrl+r"),
	),
	List: key.NewBinding(
		key.WithKeys("ctrl+l"),
	),
	Upload: key.NewBinding(
		key.WithKeys("ctrl+u"),
	),
	Clear: key.NewBinding(
		key.WithKeys("ctrl+k"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
	),
	Escape: key.NewBinding(
		key.WithKeys("esc"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+q"),
	),
}

var keySequences = map[tea.KeyType]string{
	tea.KeyEnter:     "\r",
	tea.KeyBackspace: "\x7f",
	tea.KeyTab:       "\t",
	tea.KeySpace:     " ",
	tea.KeyEsc:       "\x1b",
	tea.KeyUp:        "\x1b[A",
	tea.KeyDown:      "\x1b[B",
	tea.KeyRight:     "\x1b[C",
	tea.KeyLeft:      "\x1b[D",
	tea.KeyHome:      "\x1b[H",
	tea.KeyEnd:       "\x1b[F",
	tea.KeyDelete:    "\x1b[3~",
	tea.KeyCtrlA:     "\x01",
	tea.KeyCtrlB:     "\x02",
	tea.KeyCtrlC:     "\x03",
	tea.KeyCtrlD:     "\x04",
	tea.KeyCtrlE:     "\x05",
}

// keyBytes returns what the board expects for a keystroke, or nil for keys
// that are not forwarded.
func keyBytes(msg tea.KeyMsg) []byte {
	if msg.Type == tea.KeyRunes {
		s := string(msg.Runes)
		if msg.Alt {
			s = "\x1b" + s
		}
		return []byte(s)
	}
	if s, ok := keySequences[msg.Type]; ok {
		return []byte(s)
	}
	return nil
}
