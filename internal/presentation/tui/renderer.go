package tui

import (
	"os"

	"github.com/aretw0/clara/pkg/runner"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a markdown renderer for the runner.
// Terminals get an auto-detected light or dark style; anything else the
// plain "notty" style.
func NewRenderer(interactive bool) runner.ContentRenderer {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(88)}
	if interactive {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}
