package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/graph"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle   = lipgloss.NewStyle().Width(18)
)

// palette holds the colors of one report. Colors are per instance so a
// report written to a file never inherits terminal state.
type palette struct {
	logic, dao, stmt, tag *color.Color
	info, warn, severe    *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		logic:  color.New(color.FgCyan),
		dao:    color.New(color.FgGreen),
		stmt:   color.New(color.FgMagenta),
		tag:    color.New(color.FgYellow, color.Faint),
		info:   color.New(color.FgBlue),
		warn:   color.New(color.FgYellow),
		severe: color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.logic, p.dao, p.stmt, p.tag, p.info, p.warn, p.severe} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SeverityError:
		return p.severe
	case diag.SeverityWarning:
		return p.warn
	default:
		return p.info
	}
}

// Text writes a human-readable report: graph totals, every logic method with
// the DAO methods and statements it reaches, and the diagnostics.
func Text(w io.Writer, snap *graph.Snapshot, opts Options) error {
	f := snap.Graph()
	p := newPalette(opts.Color)
	var b strings.Builder

	title := "daotrace report"
	if opts.Root != "" {
		title += ": " + opts.Root
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n\n")

	stats := f.Stats()
	b.WriteString(sectionStyle.Render("Totals") + "\n")
	for _, k := range []graph.NodeKind{graph.NodeLogicMethod, graph.NodeDAOMethod, graph.NodeStatement, graph.NodeMethod} {
		fmt.Fprintf(&b, "  %s%d\n", labelStyle.Render(string(k)), stats.Nodes[k])
	}
	for _, k := range []graph.EdgeKind{graph.EdgeLogicToDAO, graph.EdgeDAOToStatement, graph.EdgeUnclassified} {
		fmt.Fprintf(&b, "  %s%d\n", labelStyle.Render(string(k)), stats.Edges[k])
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Traces") + "\n")
	traced := 0
	for _, n := range f.Nodes() {
		if n.Kind != graph.NodeLogicMethod {
			continue
		}
		var calls []graph.Edge
		for _, e := range f.Outgoing(n.ID) {
			if e.Kind == graph.EdgeLogicToDAO {
				calls = append(calls, e)
			}
		}
		if len(calls) == 0 {
			continue
		}
		traced++
		fmt.Fprintf(&b, "  %s\n", p.logic.Sprint(display(n)))
		for _, call := range calls {
			dao, _ := f.Node(call.Target)
			line := fmt.Sprintf("    -> %s%s", p.dao.Sprint(display(dao)), count(call))
			for _, tag := range dao.Tags {
				line += " " + p.tag.Sprintf("[%s]", tag)
			}
			b.WriteString(line + "\n")
			for _, e := range f.Outgoing(call.Target) {
				if e.Kind != graph.EdgeDAOToStatement {
					continue
				}
				stmt, _ := f.Node(e.Target)
				fmt.Fprintf(&b, "       => %s%s%s\n", p.stmt.Sprint(display(stmt)), count(e), details(e, stmt))
			}
		}
	}
	if traced == 0 {
		b.WriteString("  (no logic to DAO calls found)\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s\n", sectionStyle.Render(fmt.Sprintf("Diagnostics (%d)", len(snap.Diagnostics))))
	bySev := diag.BySeverity(snap.Diagnostics)
	sevs := make([]string, 0, len(bySev))
	for s, n := range bySev {
		sevs = append(sevs, fmt.Sprintf("%s=%d", s, n))
	}
	sort.Strings(sevs)
	if len(sevs) > 0 {
		fmt.Fprintf(&b, "  %s\n", strings.Join(sevs, " "))
	}
	for _, d := range snap.Diagnostics {
		fmt.Fprintf(&b, "  %s %s %s\n      %s\n",
			p.severity(d.Severity).Sprintf("%-7s", d.Severity), d.Kind, d.Position, d.Message)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func display(n graph.Node) string {
	switch {
	case n.Method != nil:
		return n.Method.String()
	case n.Statement != nil:
		return n.Statement.String()
	default:
		return n.ID
	}
}

func count(e graph.Edge) string {
	if e.OccurrenceCount <= 1 {
		return ""
	}
	return fmt.Sprintf(" x%d", e.OccurrenceCount)
}

func details(e graph.Edge, stmt graph.Node) string {
	var parts []string
	if len(e.Access) > 0 {
		parts = append(parts, strings.Join(e.Access, "|"))
	}
	if tag := stmt.Attributes[graph.AttrXMLTag]; tag != "" {
		parts = append(parts, "<"+tag+">")
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
