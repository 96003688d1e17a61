package shell

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/martinribelotta/uPyIDE/internal/vfs"
)

const DefaultColumns = 80

// PrintColumns lays words out in as many columns as fit in width, filled
// column-major: word i goes to row i mod rows, column i div rows. Width is
// measured on the visible text so styled words line up.
func PrintColumns(w io.Writer, words []string, width int) {
	if len(words) == 0 {
		return
	}
	widest := 0
	for _, word := range words {
		widest = max(widest, lipgloss.Width(word))
	}
	ncols := max(1, (width+1)/(widest+1))
	nrows := (len(words) + ncols - 1) / ncols

	var line strings.Builder
	for row := 0; row < nrows; row++ {
		line.Reset()
		for i := row; i < len(words); i += nrows {
			line.WriteString(words[i])
			if i+nrows < len(words) {
				line.WriteString(strings.Repeat(" ", widest-lipgloss.Width(words[i])+1))
			}
		}
		fmt.Fprintln(w, line.String())
	}
}

var (
	dirStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "27", Dark: "75"}).Bold(true)
	pyStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "114"})
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "90", Dark: "213"}).Bold(true)
)

// decorate marks directories with a trailing slash and colors names.
func (s *Shell) decorate(e vfs.Entry) string {
	name := e.Name
	switch {
	case e.Stat.IsDir():
		if s.Session.Color {
			name = dirStyle.Render(name)
		}
		return name + "/"
	case strings.HasSuffix(name, ".py") && s.Session.Color:
		return pyStyle.Render(name)
	}
	return name
}

// printLong writes "size Mon dd hh:mm name" for one entry.
func (s *Shell) printLong(w io.Writer, e vfs.Entry) {
	t := e.Stat.ModTime.Local()
	fmt.Fprintf(w, "%6d %s %2d %02d:%02d %s\n",
		e.Stat.Size, t.Month().String()[:3], t.Day(), t.Hour(), t.Minute(), s.decorate(e))
}

// ctime formats t like the date command without the zone.
func ctime(t time.Time) string {
	return t.Format("Mon Jan _2 15:04:05 2006")
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}
