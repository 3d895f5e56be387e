// Package parser turns source files into compilation units and classifies
// them into architectural layers.
package parser

import (
	"github.com/imyousuf/daotrace/internal/diag"
	"github.com/imyousuf/daotrace/internal/unit"
)

// Language represents a supported source language.
type Language string

const (
	LangJava Language = "java"
)

// FileExtensions maps each language to its recognized file extensions.
var FileExtensions = map[Language][]string{
	LangJava: {".java"},
}

// ParseResult holds the units and diagnostics produced from one file.
type ParseResult struct {
	Units       []*unit.CompilationUnit
	Diagnostics []diag.Diagnostic
	FilePath    string
	Language    Language
}

// Parser defines the interface for language-specific source parsers.
type Parser interface {
	// Language returns which language this parser handles.
	Language() Language

	// Extensions returns the file extensions this parser can handle.
	Extensions() []string

	// ParseFile parses the given file content. filePath is recorded in every
	// position and should be relative to the analysis root.
	ParseFile(filePath string, content []byte) (*ParseResult, error)
}
