package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// palette styles status words. Styles are no-ops when plain is set.
type palette struct {
	plain bool
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func (p palette) render(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func (p palette) ok(text string) string   { return p.render(okStyle, text) }
func (p palette) warn(text string) string { return p.render(warnStyle, text) }
func (p palette) bad(text string) string  { return p.render(badStyle, text) }
func (p palette) dim(text string) string  { return p.render(dimStyle, text) }
