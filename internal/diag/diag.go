// Package diag defines the diagnostics reported alongside a call graph.
package diag

import (
	"sort"

	"github.com/imyousuf/daotrace/internal/unit"
)

// Kind classifies a diagnostic.
type Kind string

const (
	MalformedStatementRef  Kind = "MALFORMED_STATEMENT_REF"
	UnresolvedStatementRef Kind = "UNRESOLVED_STATEMENT_REF"
	UnresolvedDelegation   Kind = "UNRESOLVED_DELEGATION"
	AmbiguousTarget        Kind = "AMBIGUOUS_TARGET"
	UnreachedMethod        Kind = "UNREACHED_METHOD"
	UnknownStatement       Kind = "UNKNOWN_STATEMENT"
	MalformedCallSite      Kind = "MALFORMED_CALL_SITE"
	ExtractionFailed       Kind = "EXTRACTION_FAILED"
	DuplicateUnit          Kind = "DUPLICATE_UNIT"
	DuplicateStatement     Kind = "DUPLICATE_STATEMENT"
	ParseFailed            Kind = "PARSE_FAILED"
	ParseIncomplete        Kind = "PARSE_INCOMPLETE"
)

// Severity is how serious a diagnostic is. None of them fail a run.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is one recoverable issue found during a run.
type Diagnostic struct {
	Kind     Kind          `json:"kind"`
	Severity Severity      `json:"severity"`
	Subject  string        `json:"subject"`
	Message  string        `json:"message"`
	Position unit.Position `json:"position"`
}

// Sort orders diagnostics by subject, kind, position, then message.
func Sort(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Position != b.Position {
			return a.Position.Less(b.Position)
		}
		return a.Message < b.Message
	})
}

// Count returns the number of diagnostics of the given kind.
func Count(ds []Diagnostic, kind Kind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// BySeverity groups diagnostic counts by severity.
func BySeverity(ds []Diagnostic) map[Severity]int {
	out := make(map[Severity]int)
	for _, d := range ds {
		out[d.Severity]++
	}
	return out
}
