package emv

import (
	"errors"
	"strings"
)

var ErrNoTrack2Separator = errors.New("track 2 separator not found")

// Track2 is the decoded track 2 equivalent data of tag 57 or 9F6B.
type Track2 struct {
	PAN           PAN
	Expiry        string
	ServiceCode   string
	Discretionary string
}

// ParseTrack2 splits track 2 equivalent data on the D separator, or on '='
// when the card stores the track as ASCII. Trailing F padding is dropped.
func ParseTrack2(raw []byte) (*Track2, error) {
	s, sep := asciiTrack2(raw)
	if sep < 0 {
		s = strings.TrimRight(string(nibbles(raw)), "F")
		sep = strings.IndexByte(s, 'D')
		if sep < 0 || !isDigits(s[:sep]) {
			return nil, ErrNoTrack2Separator
		}
	}

	t := &Track2{PAN: checkPAN(s[:sep])}
	rest := s[sep+1:]
	if len(rest) >= 4 {
		t.Expiry = rest[:4]
		rest = rest[4:]
	}

	if len(rest) >= 3 {
		t.ServiceCode = rest[:3]
		rest = rest[3:]
	}

	t.Discretionary = rest
	return t, nil
}

// asciiTrack2 returns the track and the index of '=' when raw is made only of
// ASCII digits around a single separator, and -1 otherwise.
func asciiTrack2(raw []byte) (string, int) {
	s := strings.TrimRight(string(raw), " \x00")
	sep := strings.IndexByte(s, '=')
	if sep <= 0 || strings.Count(s, "=") != 1 {
		return "", -1
	}

	if !isDigits(s[:sep]) || (sep+1 < len(s) && !isDigits(s[sep+1:])) {
		return "", -1
	}

	return s, sep
}
