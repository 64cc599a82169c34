package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/omochice/dialog-session/internal/dialogs"
	"github.com/omochice/dialog-session/internal/notice"
)

const (
	uidWidth  = 10
	nameWidth = 20
)

// view writes the terminal presentation of a session.
type view struct {
	mu      sync.Mutex
	out     io.Writer
	notices *notice.Printer

	header   lipgloss.Style
	unread   lipgloss.Style
	selected lipgloss.Style
	muted    lipgloss.Style
}

func newView(out io.Writer) *view {
	return &view{
		out:      out,
		notices:  notice.NewPrinter(out),
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
		unread:   lipgloss.NewStyle().Bold(true),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		muted:    lipgloss.NewStyle().Faint(true),
	}
}

func (v *view) notice(n notice.Notice) {
	_ = v.notices.Print(n)
}

func (v *view) status(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, v.muted.Render("-- "+text))
}

func (v *view) opened(req dialogs.OpenRequest) {
	v.mu.Lock()
	defer v.mu.Unlock()
	line := fmt.Sprintf("open %s (%s)", req.Name, req.UID)
	if req.MarkAsRead {
		line += " marked read"
	}
	fmt.Fprintln(v.out, line)
}

func (v *view) list(items []dialogs.Summary, sel dialogs.SelectionState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprint(v.out, v.render(items, sel))
}

// render formats the dialog list as a table, one dialog per line.
func (v *view) render(items []dialogs.Summary, sel dialogs.SelectionState) string {
	var b strings.Builder
	b.WriteString(v.header.Render(fmt.Sprintf("   %-*s  %-*s  %s", uidWidth, "UID", nameWidth, "NAME", "MESSAGE")))
	b.WriteByte('\n')
	if len(items) == 0 {
		b.WriteString(v.muted.Render("   no dialogs"))
		b.WriteByte('\n')
		return b.String()
	}
	for _, d := range items {
		marker := " "
		if slices.Contains(sel.UIDs, d.UID) {
			marker = "*"
		}
		text := d.LastMessage
		if d.IsOwn {
			text = "you: " + text
		}
		row := fmt.Sprintf("%s  %-*s  %-*s  %s", marker, uidWidth, truncate(d.UID, uidWidth), nameWidth, truncate(d.Name, nameWidth), text)
		switch {
		case marker == "*":
			row = v.selected.Render(row)
		case !d.IsOwn && !d.IsRead:
			row = v.unread.Render(row)
		}
		b.WriteString(row)
		b.WriteByte('\n')
	}
	if sel.Mode == dialogs.ModeSelect {
		b.WriteString(v.muted.Render(fmt.Sprintf("   %d selected", len(sel.UIDs))))
		b.WriteByte('\n')
	}
	return b.String()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
