// Package extractor scans arbitrary text for CPF candidates and keeps
// only the checksum-valid ones.
package extractor

import (
	"regexp"

	"github.com/digimosa/cpf-portal-scan/internal/cpf"
)

// Candidate pattern: three groups of three digits plus two check digits,
// each separator (dot, dash or one whitespace) independently optional.
// Matches "000.000.000-00", "00000000000" and partially formatted
// variants, with word boundaries so digit runs inside longer numbers
// are not picked up.
var cpfPattern = regexp.MustCompile(`\b\d{3}[.\-\s]?\d{3}[.\-\s]?\d{3}[.\-\s]?\d{2}\b`)

// Stats counts regex candidates before and after checksum validation.
type Stats struct {
	Candidates int
	Valid      int
	Invalid    int
}

// Extract returns the unique checksum-valid CPFs found in text,
// normalized to digits-only form, in first-seen order.
func Extract(text string) []string {
	var found []string
	seen := make(map[string]bool)

	for _, m := range cpfPattern.FindAllString(text, -1) {
		normalized := cpf.OnlyDigits(m)
		if !cpf.IsValid(normalized) {
			continue
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		found = append(found, normalized)
	}
	return found
}

// ExtractStats runs the same scan as Extract but reports candidate
// counts, for observability and tests.
func ExtractStats(text string) Stats {
	var s Stats
	for _, m := range cpfPattern.FindAllString(text, -1) {
		s.Candidates++
		if cpf.IsValid(cpf.OnlyDigits(m)) {
			s.Valid++
		} else {
			s.Invalid++
		}
	}
	return s
}
