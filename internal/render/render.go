// Package render writes analysis snapshots as JSON, as a CSV trace report,
// or as a styled console report.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/imyousuf/daotrace/internal/graph"
)

// Format selects a renderer.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatCSV, FormatText}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want json, csv or text)", s)
}

// Options tunes rendering.
type Options struct {
	// Color enables ANSI styling in the text report.
	Color bool
	// Root is shown in the text report header.
	Root string
}

// Write renders snap in the given format.
func Write(w io.Writer, format Format, snap *graph.Snapshot, opts Options) error {
	switch format {
	case FormatJSON:
		return JSON(w, snap)
	case FormatCSV:
		return CSV(w, snap)
	case FormatText:
		return Text(w, snap, opts)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// JSON writes the snapshot with two-space indentation. Equal snapshots
// always produce identical bytes.
func JSON(w io.Writer, snap *graph.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// CSVHeader is the column layout of the trace report.
var CSVHeader = []string{
	"logic_class", "logic_method", "dao_class", "dao_method",
	"access", "namespace", "operation", "xml_tag",
}

// TraceRow is one logic to DAO to statement chain.
type TraceRow struct {
	LogicClass  string
	LogicMethod string
	DAOClass    string
	DAOMethod   string
	Access      string
	Namespace   string
	Operation   string
	XMLTag      string
}

func (r TraceRow) record() []string {
	return []string{
		r.LogicClass, r.LogicMethod, r.DAOClass, r.DAOMethod,
		r.Access, r.Namespace, r.Operation, r.XMLTag,
	}
}

// Traces flattens a graph into logic to DAO to statement chains. A DAO
// target without statement edges yields one row with empty statement
// columns. Rows follow the graph's edge order.
func Traces(f *graph.Frozen) []TraceRow {
	var rows []TraceRow
	for _, l2d := range f.EdgesOfKind(graph.EdgeLogicToDAO) {
		logic, ok := f.Node(l2d.Source)
		if !ok || logic.Method == nil {
			continue
		}
		dao, ok := f.Node(l2d.Target)
		if !ok || dao.Method == nil {
			continue
		}
		base := TraceRow{
			LogicClass:  logic.Method.TypeName(),
			LogicMethod: logic.Method.Name,
			DAOClass:    dao.Method.TypeName(),
			DAOMethod:   dao.Method.Name,
		}

		emitted := false
		for _, d2s := range f.Outgoing(l2d.Target) {
			if d2s.Kind != graph.EdgeDAOToStatement {
				continue
			}
			stmt, ok := f.Node(d2s.Target)
			if !ok || stmt.Statement == nil {
				continue
			}
			row := base
			row.Access = strings.Join(d2s.Access, "|")
			row.Namespace = stmt.Statement.Namespace
			row.Operation = stmt.Statement.Operation
			row.XMLTag = stmt.Attributes[graph.AttrXMLTag]
			rows = append(rows, row)
			emitted = true
		}
		if !emitted {
			rows = append(rows, base)
		}
	}
	return rows
}

// CSV writes the combined trace report.
func CSV(w io.Writer, snap *graph.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range Traces(snap.Graph()) {
		if err := cw.Write(row.record()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ColorEnabled resolves a color mode ("auto", "always", "never") for f.
// Auto enables color on terminals unless NO_COLOR is set.
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
