// Package validator gates downloaded bytes before they are accepted
// into the parsing stage. Portals routinely answer a dead resource link
// with an HTML error page and status 200; the checks here catch that
// before a bogus file ever reaches a parser.
package validator

import (
	"bytes"
	"os"
	"strings"

	"github.com/digimosa/cpf-portal-scan/internal/models"
)

const (
	// Anything below this is not a plausible data file.
	DefaultMinSize = 100
	// Anything above this is rejected outright.
	DefaultMaxSize = 110 * 1024 * 1024
)

var pdfMagic = []byte("%PDF-")

// Error-page indicators, matched case-insensitively against the head of
// the payload.
var htmlIndicators = []string{
	"<!doctype",
	"<html",
	"<head",
	"<title",
	"404 not found",
	"403 forbidden",
	"500 internal server error",
	"access denied",
}

// Result is the outcome of a content check.
type Result struct {
	Valid  bool
	Reason models.FailureReason
}

func ok() Result { return Result{Valid: true} }

func rejected(r models.FailureReason) Result { return Result{Reason: r} }

// ContentValidator checks raw bytes and written files. Size bounds are
// fields so tests do not need 100MB payloads.
type ContentValidator struct {
	MinSize int64
	MaxSize int64
}

func New() *ContentValidator {
	return &ContentValidator{MinSize: DefaultMinSize, MaxSize: DefaultMaxSize}
}

// ValidateContent inspects downloaded bytes against the declared format.
func (v *ContentValidator) ValidateContent(data []byte, expectedFormat string) Result {
	if len(data) == 0 {
		return rejected(models.ReasonEmpty)
	}

	if strings.EqualFold(strings.TrimSpace(expectedFormat), "pdf") {
		head := bytes.TrimLeft(data, " \t\r\n")
		if !bytes.HasPrefix(head, pdfMagic) {
			if LooksLikeHTMLError(data) {
				return rejected(models.ReasonHTMLErrorPage)
			}
			return rejected(models.ReasonBadMagicHeader)
		}
	}

	if int64(len(data)) < v.MinSize {
		return rejected(models.ReasonTooSmall)
	}
	if int64(len(data)) > v.MaxSize {
		return rejected(models.ReasonTooLarge)
	}
	return ok()
}

// ValidateFile re-checks a file already written to disk, defending
// against partial or truncated writes.
func (v *ContentValidator) ValidateFile(path string, expectedFormat string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return rejected(models.ReasonFileUnreadable)
	}
	if info.Size() == 0 {
		return rejected(models.ReasonEmpty)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rejected(models.ReasonFileUnreadable)
	}
	return v.ValidateContent(data, expectedFormat)
}

// LooksLikeHTMLError reports whether the payload resembles an HTML
// error page. Only the first 2KB are inspected.
func LooksLikeHTMLError(data []byte) bool {
	head := data
	if len(head) > 2048 {
		head = head[:2048]
	}
	lowered := strings.ToLower(string(head))
	for _, indicator := range htmlIndicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}
