package unit

import (
	"errors"
	"fmt"
)

// ErrInvalidUnit marks a unit stream that violates the model contract.
var ErrInvalidUnit = errors.New("invalid unit stream")

// ValidationError describes the first contract violation found in a unit.
type ValidationError struct {
	File   string
	Unit   string
	Reason string
}

func (e *ValidationError) Error() string {
	subject := e.Unit
	if subject == "" {
		subject = "<unnamed>"
	}
	if e.File != "" {
		return fmt.Sprintf("%s (%s): %s", subject, e.File, e.Reason)
	}
	return fmt.Sprintf("%s: %s", subject, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidUnit }

// Validate checks the identity fields of every unit. It returns the first
// violation as a *ValidationError.
func Validate(units []*CompilationUnit) error {
	for i, u := range units {
		if u == nil {
			return &ValidationError{Reason: fmt.Sprintf("unit %d is nil", i)}
		}
		if err := validateUnit(u); err != nil {
			return err
		}
	}
	return nil
}

func validateUnit(u *CompilationUnit) error {
	fail := func(format string, args ...any) error {
		return &ValidationError{File: u.File, Unit: u.QualifiedName(), Reason: fmt.Sprintf(format, args...)}
	}
	if u.Name == "" {
		return fail("missing type name")
	}
	for i := range u.Fields {
		if u.Fields[i].Name == "" {
			return fail("field %d has no name", i)
		}
	}
	for i := range u.Methods {
		m := &u.Methods[i]
		if m.ID.Name == "" {
			return fail("method %d has no name", i)
		}
		if m.ID.Type != u.Name || m.ID.Package != u.Package {
			return fail("method %s declared outside its unit", m.ID)
		}
		if len(m.Params) != m.ID.Arity() {
			return fail("method %s has %d params, id lists %d", m.ID, len(m.Params), m.ID.Arity())
		}
		if !m.HasBody && len(m.Body) > 0 {
			return fail("method %s has a body but is marked bodiless", m.ID)
		}
		for j := range m.Body {
			call := m.Body[j].Call
			if m.Body[j].Kind == NodeCall && call != nil && !call.Caller.IsZero() && call.Caller != m.ID {
				return fail("call site %d in %s belongs to %s", j, m.ID, call.Caller)
			}
		}
	}
	return nil
}
