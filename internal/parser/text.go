package parser

import (
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// TextParser reads raw bytes and transcodes them to UTF-8. Candidate
// encodings are UTF-8, Windows-1252 and ISO-8859-1, the three that
// occur in practice on Brazilian open-data portals.
type TextParser struct{}

func NewTextParser() *TextParser { return &TextParser{} }

func (p *TextParser) Text(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}
	return DecodeText(data), nil
}

func (p *TextParser) Supports(ext string) bool {
	// The text parser is the fallback; it accepts anything.
	return true
}

func (p *TextParser) SupportedFormats() []string {
	return []string{"txt"}
}

// DecodeText returns data as a UTF-8 string. Valid UTF-8 passes through
// unchanged. Otherwise the bytes are decoded as Windows-1252 when the
// 0x80-0x9F range is in use (printable there, control codes in
// ISO-8859-1) and as ISO-8859-1 otherwise. Both decoders are total, so
// this never fails.
func DecodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	cm := charmap.ISO8859_1
	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			cm = charmap.Windows1252
			break
		}
	}

	decoded, err := cm.NewDecoder().Bytes(data)
	if err != nil {
		// charmap decoders do not error; keep the raw bytes as a fallback.
		return string(data)
	}
	return string(decoded)
}
