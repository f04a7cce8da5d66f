// Package parser turns downloaded resource files into plain text for
// CPF scanning. One parser per family of formats, dispatched by the
// lower-cased file extension via the factory in factory.go.
package parser

import (
	"fmt"
	"time"
)

// Parser extracts scannable text from a file on disk.
type Parser interface {
	Text(path string) (string, error)
	Supports(ext string) bool
	SupportedFormats() []string
}

// CellSeparator is inserted between cells and scalar values so that
// adjacent numeric fields can never concatenate into an accidental
// 11-digit candidate. The pipe is not a CPF separator character, so it
// always breaks a match.
const CellSeparator = " | "

// ParseError wraps the underlying cause together with the file that
// could not be read. Parsers never return partial text silently.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TimeoutError signals that a parse exceeded its execution ceiling.
// Distinct from a network timeout: this is the one place a CPU-bound
// operation is treated as abortable.
type TimeoutError struct {
	Path    string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("parse %s: exceeded time limit after %s", e.Path, e.Elapsed)
}
