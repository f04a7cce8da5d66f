package parser

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetParser iterates every sheet and row of a workbook,
// joining non-empty cells per row. Uses the streaming row iterator so
// large workbooks do not have to fit in memory at once.
type SpreadsheetParser struct{}

func NewSpreadsheetParser() *SpreadsheetParser { return &SpreadsheetParser{} }

func (p *SpreadsheetParser) Text(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.Rows(sheet)
		if err != nil {
			return "", &ParseError{Path: path, Err: err}
		}

		for rows.Next() {
			cells, err := rows.Columns()
			if err != nil {
				rows.Close()
				return "", &ParseError{Path: path, Err: err}
			}

			first := true
			for _, cell := range cells {
				cell = strings.TrimSpace(cell)
				if cell == "" {
					continue
				}
				if !first {
					sb.WriteString(" ")
				}
				sb.WriteString(cell)
				first = false
			}
			sb.WriteString("\n")
		}
		if err := rows.Close(); err != nil {
			return "", &ParseError{Path: path, Err: err}
		}
	}
	return sb.String(), nil
}

func (p *SpreadsheetParser) Supports(ext string) bool {
	return FormatFromExtension(ext) == FormatSpreadsheet
}

func (p *SpreadsheetParser) SupportedFormats() []string {
	return []string{"xls", "xlsx", "ods"}
}
