package session

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/mitchellh/go-homedir"
	"github.com/muesli/termenv"
)

// Renderer formats a reply for the terminal.
type Renderer interface {
	Render(markdown string) (string, error)
}

type plainRenderer struct{}

func (plainRenderer) Render(markdown string) (string, error) {
	return markdown + "\n", nil
}

// PlainRenderer prints replies as they are.
func PlainRenderer() Renderer { return plainRenderer{} }

// NewMarkdownRenderer renders replies with glamour. style is a standard
// style name, "auto", or the path of a JSON style file.
func NewMarkdownRenderer(style string, width int) (Renderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamourStyle(style),
		glamour.WithWordWrap(width),
	)
}

func glamourStyle(style string) glamour.TermRendererOption {
	if style == styles.AutoStyle {
		if termenv.HasDarkBackground() {
			return glamour.WithStandardStyle(styles.DarkStyle)
		}
		return glamour.WithStandardStyle(styles.LightStyle)
	}
	if styles.DefaultStyles[style] != nil {
		return glamour.WithStandardStyle(style)
	}
	if path, err := homedir.Expand(style); err == nil {
		style = path
	}
	return glamour.WithStylePath(style)
}
