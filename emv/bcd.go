// Package emv extracts cardholder fields from decoded EMV records.
package emv

import (
	"errors"
	"strings"
)

var ErrInvalidDigits = errors.New("field holds neither bcd nor ascii digits")

// nibbles returns the hex digits of raw in upper case.
func nibbles(raw []byte) []byte {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(raw)*2)
	for _, b := range raw {
		out = append(out, digits[b>>4], digits[b&0x0F])
	}
	return out
}

// DecodeBCD decodes packed BCD digits. Trailing F nibbles are padding; any
// other nibble outside 0-9 makes the field invalid.
func DecodeBCD(raw []byte) (string, error) {
	s := strings.TrimRight(string(nibbles(raw)), "F")
	if !isDigits(s) {
		return "", ErrInvalidDigits
	}

	return s, nil
}

// decodeDigits reads a numeric field that some issuers store as ASCII
// instead of BCD. ASCII digits are valid BCD nibbles too, so the ASCII
// reading wins only when every byte is a digit character and the BCD reading
// would be longer than maxLen digits.
func decodeDigits(raw []byte, maxLen int) (string, error) {
	s := strings.TrimRight(string(raw), " ")
	if isDigits(s) && len(raw)*2 > maxLen {
		return s, nil
	}

	return DecodeBCD(raw)
}

// DecodeBCDNumber decodes one BCD byte into its two digit value.
func DecodeBCDNumber(b byte) (int, bool) {
	hi, lo := int(b>>4), int(b&0x0F)
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return hi*10 + lo, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
