package parser

import (
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const (
	// Files above this size go through the batched page path so the
	// whole parse tree is never materialized at once.
	pdfChunkThreshold = 50 * 1024 * 1024

	// Pages extracted per batch on the chunked path.
	pdfPageBatch = 25

	// ledongthuc/pdf can be very slow on large or malformed documents;
	// the ceiling keeps one bad file from stalling a whole scan.
	pdfParseDeadline = 5 * time.Minute
)

// PDFParser extracts and concatenates the plain text of every page.
type PDFParser struct {
	ChunkThreshold int64
	PageBatch      int
	Deadline       time.Duration

	// batchProbe is invoked with each batch's page count on the
	// chunked path. Test hook, nil in production.
	batchProbe func(pages int)
}

func NewPDFParser() *PDFParser {
	return &PDFParser{
		ChunkThreshold: pdfChunkThreshold,
		PageBatch:      pdfPageBatch,
		Deadline:       pdfParseDeadline,
	}
}

func (p *PDFParser) Text(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}

	f, doc, err := pdf.Open(path)
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	deadline := time.Now().Add(p.Deadline)
	total := doc.NumPage()

	var sb strings.Builder
	if info.Size() > p.ChunkThreshold {
		for _, r := range batchRanges(total, p.PageBatch) {
			if err := p.extractPages(doc, r[0], r[1], deadline, path, &sb); err != nil {
				return "", err
			}
			if p.batchProbe != nil {
				p.batchProbe(r[1] - r[0] + 1)
			}
		}
	} else {
		if err := p.extractPages(doc, 1, total, deadline, path, &sb); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func (p *PDFParser) extractPages(doc *pdf.Reader, first, last int, deadline time.Time, path string, sb *strings.Builder) error {
	for i := first; i <= last; i++ {
		if time.Now().After(deadline) {
			return &TimeoutError{Path: path, Elapsed: p.Deadline}
		}

		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not void the document.
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return nil
}

// batchRanges splits 1..total into inclusive [first,last] page ranges
// of at most size pages.
func batchRanges(total, size int) [][2]int {
	if total <= 0 {
		return nil
	}
	if size <= 0 {
		size = 1
	}
	var ranges [][2]int
	for first := 1; first <= total; first += size {
		last := first + size - 1
		if last > total {
			last = total
		}
		ranges = append(ranges, [2]int{first, last})
	}
	return ranges
}

func (p *PDFParser) Supports(ext string) bool {
	return FormatFromExtension(ext) == FormatPDF
}

func (p *PDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}
