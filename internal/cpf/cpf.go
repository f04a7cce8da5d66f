// Package cpf implements check-digit validation for the Brazilian CPF
// (Cadastro de Pessoas Físicas), an 11-digit personal taxpayer number
// whose last two digits are checksums over the preceding ones.
package cpf

import (
	"strings"
)

// IsValid reports whether candidate is a checksum-valid CPF. All
// non-digit characters are stripped first, so both "123.456.789-09"
// and "12345678909" are accepted. It never panics on garbage input.
func IsValid(candidate string) bool {
	digits := OnlyDigits(candidate)
	if len(digits) != 11 {
		return false
	}

	// Sequences like "00000000000" pass the checksum math but are
	// never issued. Reject them up front.
	if allSame(digits) {
		return false
	}

	if checkDigit(digits, 9) != int(digits[9]-'0') {
		return false
	}
	if checkDigit(digits, 10) != int(digits[10]-'0') {
		return false
	}
	return true
}

// OnlyDigits strips everything but ASCII digits.
func OnlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// checkDigit computes the check digit over the first n digits using
// descending weights n+1..2; remainder below 2 maps to 0.
func checkDigit(digits string, n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += int(digits[i]-'0') * (n + 1 - i)
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

func allSame(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
