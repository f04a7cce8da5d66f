package parser

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"sort"
	"strings"
)

// JSONParser walks every scalar leaf of an arbitrarily nested document,
// wrapping each in CellSeparator. Object keys and structure are
// ignored; only string and number leaves can carry a CPF.
type JSONParser struct{}

func NewJSONParser() *JSONParser { return &JSONParser{} }

func (p *JSONParser) Text(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}

	// UseNumber keeps long numeric ids verbatim instead of going
	// through float64 and back.
	dec := json.NewDecoder(strings.NewReader(DecodeText(data)))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return "", &ParseError{Path: path, Err: err}
	}

	// A single top-level value must consume the whole input; trailing
	// bytes mean the file is not valid JSON.
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return "", &ParseError{Path: path, Err: errors.New("trailing data after top-level value")}
	}

	var sb strings.Builder
	walkScalars(doc, &sb)
	return sb.String(), nil
}

func walkScalars(node any, sb *strings.Builder) {
	switch v := node.(type) {
	case map[string]any:
		// Map iteration order is randomized; visit keys sorted so the
		// same document always renders the same text.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkScalars(v[k], sb)
		}
	case []any:
		for _, child := range v {
			walkScalars(child, sb)
		}
	case string:
		sb.WriteString(CellSeparator)
		sb.WriteString(v)
		sb.WriteString(CellSeparator)
	case json.Number:
		sb.WriteString(CellSeparator)
		sb.WriteString(v.String())
		sb.WriteString(CellSeparator)
	case bool, nil:
		// nothing scannable
	}
}

func (p *JSONParser) Supports(ext string) bool {
	return FormatFromExtension(ext) == FormatJSON
}

func (p *JSONParser) SupportedFormats() []string {
	return []string{"json"}
}
