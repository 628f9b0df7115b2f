package emv

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	minPANLength = 12
	maxPANLength = 19
)

// PAN is a primary account number and how much it can be trusted. A PAN that
// fails the checks is kept for diagnostics and flagged, never dropped.
type PAN struct {
	Digits    string
	Source    string
	Valid     bool
	LuhnValid bool
}

// ParsePAN decodes the value of tag 5A. Undecodable values keep their raw
// hex as Digits and are marked invalid.
func ParsePAN(raw []byte) PAN {
	digits, err := decodeDigits(raw, maxPANLength)
	if err != nil {
		return PAN{Digits: strings.ToUpper(hex.EncodeToString(raw))}
	}

	return checkPAN(digits)
}

func checkPAN(digits string) PAN {
	return PAN{
		Digits:    digits,
		Valid:     isDigits(digits) && len(digits) >= minPANLength && len(digits) <= maxPANLength,
		LuhnValid: Luhn(digits),
	}
}

// Luhn validates the mod 10 check digit of number.
func Luhn(number string) bool {
	if len(number) < 2 {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}

		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}

		sum += d
		double = !double
	}

	return sum%10 == 0
}

// MaskPAN hides every digit but the last four and groups the result by four,
// e.g. ****-****-****-1234.
func MaskPAN(pan string) string {
	if len(pan) <= 4 {
		return pan
	}

	masked := strings.Repeat("*", len(pan)-4) + pan[len(pan)-4:]
	groups := make([]string, 0, len(masked)/4+1)
	for len(masked) > 4 {
		groups = append(groups, masked[:4])
		masked = masked[4:]
	}
	groups = append(groups, masked)

	return strings.Join(groups, "-")
}

// Fingerprint returns a keyed BLAKE2b-256 digest of the PAN so sessions of the
// same card can be matched without storing the number.
func Fingerprint(pan string, key []byte) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}

	h.Write([]byte(pan))
	return hex.EncodeToString(h.Sum(nil)), nil
}
