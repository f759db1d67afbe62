package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/linkea-sync/internal/tasks"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// outcome renders the marker shown before a per-user progress line.
func (p *Palette) outcome(o tasks.Outcome) string {
	switch o {
	case tasks.OutcomeSynced:
		return p.ok.Render("✓")
	case tasks.OutcomeUpdated:
		return p.ok.Render("↻")
	case tasks.OutcomeExisting, tasks.OutcomeSkipped:
		return p.warn.Render("»")
	case tasks.OutcomeFailed:
		return p.err.Render("✗")
	default:
		return p.help.Render("•")
	}
}
