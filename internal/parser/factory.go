package parser

import (
	"path/filepath"
	"strings"
)

// Format is the closed set of parser families. Unknown extensions map
// to FormatText, never to an error.
type Format int

const (
	FormatText Format = iota
	FormatDelimited
	FormatJSON
	FormatSpreadsheet
	FormatPDF
)

// FormatFromExtension maps a file extension or portal format label
// (with or without a leading dot, any case) to a parser family.
func FormatFromExtension(ext string) Format {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".") {
	case "csv", "txt":
		return FormatDelimited
	case "json":
		return FormatJSON
	case "xls", "xlsx", "ods":
		return FormatSpreadsheet
	case "pdf":
		return FormatPDF
	default:
		return FormatText
	}
}

// ForFormat returns the parser for a format label.
func ForFormat(format string) Parser {
	switch FormatFromExtension(format) {
	case FormatDelimited:
		return NewDelimitedParser()
	case FormatJSON:
		return NewJSONParser()
	case FormatSpreadsheet:
		return NewSpreadsheetParser()
	case FormatPDF:
		return NewPDFParser()
	default:
		return NewTextParser()
	}
}

// ForFile dispatches on the file's extension.
func ForFile(path string) Parser {
	return ForFormat(filepath.Ext(path))
}
