package emv

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ParseCardholder decodes tag 5F20. The name is ISO 8859-1, space padded and
// written SURNAME/GIVEN; it is returned as "GIVEN SURNAME".
func ParseCardholder(raw []byte) string {
	return formatName(decodeLatin1(raw))
}

// ParseLabel decodes text tags such as the application label 50 or the preferred name 9F12.
func ParseLabel(raw []byte) string {
	return strings.TrimSpace(decodeLatin1(raw))
}

func decodeLatin1(raw []byte) string {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.Map(printableOnly, string(raw))
	}

	return strings.Map(printableOnly, string(decoded))
}

func printableOnly(r rune) rune {
	if r < 0x20 || r == 0x7F {
		return -1
	}
	return r
}

func formatName(name string) string {
	name = strings.TrimSpace(name)
	parts := strings.SplitN(name, "/", 2)
	if len(parts) != 2 {
		return name
	}

	surname := strings.TrimSpace(parts[0])
	given := strings.TrimSpace(parts[1])
	switch {
	case surname == "" && given == "":
		return ""
	case given == "":
		return surname
	case surname == "":
		return given
	default:
		return given + " " + surname
	}
}
