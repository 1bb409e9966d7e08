// Package tui renders tsw data for terminals.
package tui

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/aretw0/tsw/pkg/domain"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Printer writes tables, coloring states when the output is a terminal.
type Printer struct {
	w     io.Writer
	out   *termenv.Output
	color bool
}

// NewPrinter creates a Printer on w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, out: termenv.NewOutput(w), color: IsTerminal(w)}
}

// State renders s in the color of its category.
func (p *Printer) State(s domain.State) string {
	if !p.color {
		return string(s)
	}
	profile := p.out.ColorProfile()
	var c termenv.Color
	switch {
	case s == domain.StateRunning:
		c = profile.Color("#22c55e")
	case s == domain.StateBroken || s == domain.StateInvalid || s == domain.StatePortConflict:
		c = profile.Color("#ef4444")
	case s.IsActive():
		c = profile.Color("#eab308")
	default:
		return string(s)
	}
	return p.out.String(string(s)).Foreground(c).String()
}

func (p *Printer) table(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(p.w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

// Instances renders a list of instances.
func (p *Printer) Instances(list []*domain.Instance) {
	tw := p.table(table.Row{"ID", "Host", "Name", "State", "Pending", "Running", "Port", "Error"})
	for _, inst := range list {
		tw.AppendRow(table.Row{
			inst.ID, inst.HostID, inst.Name, p.State(inst.State),
			action(inst.PendingAction), action(inst.CurrentAction),
			inst.Port, truncate(inst.Error, 40),
		})
	}
	tw.Render()
}

// Instance renders the details of one instance.
func (p *Printer) Instance(inst *domain.Instance) {
	tw := p.table(table.Row{"Field", "Value"})
	rows := []table.Row{
		{"ID", inst.ID},
		{"Host", inst.HostID},
		{"Name", inst.Name},
		{"Version", inst.Version},
		{"Directory", inst.Directory},
		{"State", p.State(inst.State)},
		{"Pending action", action(inst.PendingAction)},
		{"Current action", action(inst.CurrentAction)},
		{"Error", inst.Error},
		{"Loaded mods", strings.Join(inst.LoadedMods, ", ")},
		{"Mods to enable", strings.Join(inst.ModsToEnable, ", ")},
		{"Max players", inst.MaxPlayers},
		{"Port", inst.Port},
		{"Forward port", inst.AutomaticallyForwardPort},
		{"World", inst.WorldID},
		{"Output offset", inst.NextOutputBytePosition},
		{"Updated", inst.UpdatedAt.Format(time.RFC3339)},
	}
	if inst.ActionStartTime != nil {
		rows = append(rows, table.Row{"Action started", inst.ActionStartTime.Format(time.RFC3339)})
	}
	for _, r := range rows {
		tw.AppendRow(r)
	}
	tw.Render()
}

// Events renders events, oldest first.
func (p *Printer) Events(events []*domain.Event) {
	tw := p.table(table.Row{"Time", "Type", "Content"})
	for _, ev := range events {
		tw.AppendRow(table.Row{ev.Timestamp.Format(time.RFC3339), ev.Type, truncate(ev.Content, 80)})
	}
	tw.Render()
}

// Worlds renders a list of worlds.
func (p *Printer) Worlds(worlds []*domain.World) {
	tw := p.table(table.Row{"ID", "Host", "Name", "Size", "Difficulty", "Seed", "Created"})
	for _, w := range worlds {
		tw.AppendRow(table.Row{w.ID, w.HostID, w.Name, w.Size, w.Difficulty, w.Seed, w.Created})
	}
	tw.Render()
}

func action(a *domain.Action) string {
	if a == nil {
		return "-"
	}
	return string(*a)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
