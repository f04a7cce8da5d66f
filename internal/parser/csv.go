package parser

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
)

// DelimitedParser handles csv and txt resources row by row. Non-empty
// cells are joined with CellSeparator so two numeric columns can never
// fuse into a single CPF-shaped run.
type DelimitedParser struct{}

func NewDelimitedParser() *DelimitedParser { return &DelimitedParser{} }

func (p *DelimitedParser) Text(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}

	r := csv.NewReader(strings.NewReader(DecodeText(data)))
	r.FieldsPerRecord = -1 // ragged rows are common in portal CSVs
	r.LazyQuotes = true

	var sb strings.Builder
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &ParseError{Path: path, Err: err}
		}

		first := true
		for _, cell := range record {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if !first {
				sb.WriteString(CellSeparator)
			}
			sb.WriteString(cell)
			first = false
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (p *DelimitedParser) Supports(ext string) bool {
	return FormatFromExtension(ext) == FormatDelimited
}

func (p *DelimitedParser) SupportedFormats() []string {
	return []string{"csv", "txt"}
}
