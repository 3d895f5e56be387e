package pattern

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrMalformedStatementRef is returned when a statement key does not have the
// Namespace.Operation shape.
var ErrMalformedStatementRef = errors.New("malformed statement reference")

// StatementRef names an externally configured persistence statement.
type StatementRef struct {
	Namespace string `json:"namespace"`
	Operation string `json:"operation"`
}

// ParseStatementRef splits a key on its last dot. The namespace may itself be
// a dotted qualified name; every segment must be a Java identifier.
func ParseStatementRef(key string) (StatementRef, error) {
	i := strings.LastIndexByte(key, '.')
	if i <= 0 || i == len(key)-1 {
		return StatementRef{}, fmt.Errorf("%w: %q", ErrMalformedStatementRef, key)
	}
	ns, op := key[:i], key[i+1:]
	for _, seg := range strings.Split(ns, ".") {
		if !IsIdentifier(seg) {
			return StatementRef{}, fmt.Errorf("%w: %q", ErrMalformedStatementRef, key)
		}
	}
	if !IsIdentifier(op) {
		return StatementRef{}, fmt.Errorf("%w: %q", ErrMalformedStatementRef, key)
	}
	return StatementRef{Namespace: ns, Operation: op}, nil
}

func (r StatementRef) String() string {
	return r.Namespace + "." + r.Operation
}

// IsZero reports whether the reference is unset.
func (r StatementRef) IsZero() bool {
	return r == StatementRef{}
}

// IsIdentifier reports whether s is a valid Java identifier.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// Access is the CRUD class of a data-access verb.
type Access string

const (
	AccessRead   Access = "read"
	AccessCreate Access = "create"
	AccessUpdate Access = "update"
	AccessDelete Access = "delete"
)

// ParseAccess validates an access verb class.
func ParseAccess(s string) (Access, error) {
	switch a := Access(strings.ToLower(s)); a {
	case AccessRead, AccessCreate, AccessUpdate, AccessDelete:
		return a, nil
	}
	return "", fmt.Errorf("unknown access class %q", s)
}
