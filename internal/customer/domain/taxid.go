package domain

import "strings"

const taxIDLength = 11

// NormalizeTaxID keeps only the ASCII digits of a CPF, so
// "123.456.789-01" becomes "12345678901".
func NormalizeTaxID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validateTaxID(normalized string) error {
	if len(normalized) != taxIDLength {
		return errTaxIDLength
	}
	if strings.Count(normalized, normalized[:1]) == taxIDLength {
		return errTaxIDRepeated
	}
	return nil
}
