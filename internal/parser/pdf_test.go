package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRanges(t *testing.T) {
	assert.Nil(t, batchRanges(0, 10))
	assert.Equal(t, [][2]int{{1, 10}}, batchRanges(10, 10))
	assert.Equal(t, [][2]int{{1, 10}, {11, 20}, {21, 23}}, batchRanges(23, 10))
	assert.Equal(t, [][2]int{{1, 1}, {2, 2}, {3, 3}}, batchRanges(3, 1))
}

// Every page must be covered exactly once, in order.
func TestBatchRangesCoverage(t *testing.T) {
	for _, total := range []int{1, 7, 25, 100} {
		for _, size := range []int{1, 10, 25, 1000} {
			next := 1
			for _, r := range batchRanges(total, size) {
				assert.Equal(t, next, r[0])
				assert.LessOrEqual(t, r[1]-r[0]+1, size)
				next = r[1] + 1
			}
			assert.Equal(t, total+1, next, "total=%d size=%d", total, size)
		}
	}
}

func TestPDFParserRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("<!DOCTYPE html><html></html>"), 0o644))

	_, err := NewPDFParser().Text(path)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, path, perr.Path)
}

func TestPDFParserMissingFile(t *testing.T) {
	_, err := NewPDFParser().Text(filepath.Join(t.TempDir(), "nope.pdf"))
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

// The chunked path must produce text identical to the whole-document
// path, and must actually run in batches.
func TestPDFParserChunkedEquivalence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	writeFixturePDF(t, path, 5)

	whole := NewPDFParser()
	wholeText, err := whole.Text(path)
	require.NoError(t, err)

	var batches []int
	chunked := NewPDFParser()
	chunked.ChunkThreshold = 0 // force every file onto the batched path
	chunked.PageBatch = 2
	chunked.batchProbe = func(pages int) { batches = append(batches, pages) }

	chunkedText, err := chunked.Text(path)
	require.NoError(t, err)

	assert.Equal(t, wholeText, chunkedText)
	assert.Equal(t, []int{2, 2, 1}, batches)
}

func TestPDFParserDispatch(t *testing.T) {
	p := NewPDFParser()
	assert.True(t, p.Supports(".pdf"))
	assert.True(t, p.Supports("PDF"))
	assert.False(t, p.Supports("csv"))
	assert.Equal(t, []string{"pdf"}, p.SupportedFormats())
}

// writeFixturePDF emits a minimal but structurally valid PDF with the
// given number of pages, each carrying one line of text.
func writeFixturePDF(t *testing.T, path string, pages int) {
	t.Helper()

	type object struct {
		num  int
		body string
	}
	var objects []object

	kids := make([]string, 0, pages)
	firstPageObj := 3
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", firstPageObj+2*i))
	}

	objects = append(objects,
		object{1, "<< /Type /Catalog /Pages 2 0 R >>"},
		object{2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages)},
	)

	fontObj := firstPageObj + 2*pages
	for i := 0; i < pages; i++ {
		pageNum := firstPageObj + 2*i
		contentNum := pageNum + 1
		objects = append(objects, object{pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			fontObj, contentNum)})

		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (pagina %d) Tj ET", i+1)
		objects = append(objects, object{contentNum, fmt.Sprintf(
			"<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream)})
	}
	objects = append(objects, object{fontObj, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"})

	var sb strings.Builder
	sb.WriteString("%PDF-1.4\n")
	offsets := make(map[int]int)
	for _, obj := range objects {
		offsets[obj.num] = sb.Len()
		fmt.Fprintf(&sb, "%d 0 obj\n%s\nendobj\n", obj.num, obj.body)
	}

	xrefStart := sb.Len()
	fmt.Fprintf(&sb, "xref\n0 %d\n", len(objects)+1)
	sb.WriteString("0000000000 65535 f \n")
	for num := 1; num <= len(objects); num++ {
		fmt.Fprintf(&sb, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&sb, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefStart)

	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
}
