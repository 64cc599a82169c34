// Package notice carries transient user-visible messages and renders them
// for a terminal.
package notice

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// DefaultDuration is how long a notice stays visible.
const DefaultDuration = 2 * time.Second

// Level is the severity of a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notice is a toast style message.
type Notice struct {
	Level    Level
	Title    string
	Text     string
	Duration time.Duration
}

// Info builds an informational notice with the default lifetime.
func Info(title, text string) Notice {
	return Notice{Level: LevelInfo, Title: title, Text: text, Duration: DefaultDuration}
}

// Error builds an error notice with the default lifetime.
func Error(title, text string) Notice {
	return Notice{Level: LevelError, Title: title, Text: text, Duration: DefaultDuration}
}

// Printer writes notices as single styled lines.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	info  lipgloss.Style
	err   lipgloss.Style
	title lipgloss.Style
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:     w,
		info:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		err:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		title: lipgloss.NewStyle().Bold(true),
	}
}

// Render formats n without writing it.
func (p *Printer) Render(n Notice) string {
	badge := p.info.Render("[" + n.Level.String() + "]")
	if n.Level == LevelError {
		badge = p.err.Render("[" + n.Level.String() + "]")
	}
	parts := []string{badge}
	if n.Title != "" {
		parts = append(parts, p.title.Render(n.Title))
	}
	if n.Text != "" {
		parts = append(parts, n.Text)
	}
	return strings.Join(parts, " ")
}

// Print writes n followed by a newline.
func (p *Printer) Print(n Notice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintln(p.w, p.Render(n)); err != nil {
		return fmt.Errorf("failed to print notice: %w", err)
	}
	return nil
}
