package emv

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/accessterm/cardid-go/identifiers"
)

var ErrInvalidExpiry = errors.New("invalid expiry date")

// Expiry is a card expiration month.
type Expiry struct {
	Month  int
	Year   int
	Layout string
}

func (e Expiry) String() string {
	return fmt.Sprintf("%02d/%04d", e.Month, e.Year)
}

// ParseExpiry decodes the BCD value of tag 5F24 with the layout of the
// matched brand. now anchors the plausibility check of ExpiryPlausible.
func ParseExpiry(raw []byte, layout identifiers.ExpiryLayout, now time.Time) (Expiry, error) {
	if len(raw) < 2 {
		return Expiry{}, ErrInvalidExpiry
	}

	first, ok1 := DecodeBCDNumber(raw[0])
	second, ok2 := DecodeBCDNumber(raw[1])
	if !ok1 || !ok2 {
		return Expiry{}, ErrInvalidExpiry
	}

	if layout == identifiers.ExpiryPlausible {
		return plausibleExpiry(first, second, now)
	}

	if !validMonth(second) {
		return Expiry{}, ErrInvalidExpiry
	}

	return Expiry{Month: second, Year: fullYear(first), Layout: "YYMM"}, nil
}

// ParseTrack2Expiry decodes the YYMM digits following the track 2 separator.
func ParseTrack2Expiry(yymm string) (Expiry, error) {
	if len(yymm) != 4 || !isDigits(yymm) {
		return Expiry{}, ErrInvalidExpiry
	}

	year, _ := strconv.Atoi(yymm[:2])
	month, _ := strconv.Atoi(yymm[2:])
	if !validMonth(month) {
		return Expiry{}, ErrInvalidExpiry
	}

	return Expiry{Month: month, Year: fullYear(year), Layout: "YYMM"}, nil
}

func plausibleExpiry(first, second int, now time.Time) (Expiry, error) {
	best := Expiry{}
	bestScore := 0

	// YYMM gets a small bonus as the EMV layout
	if score := plausibility(second, first, now); score > 0 && score+5 > bestScore {
		best = Expiry{Month: second, Year: fullYear(first), Layout: "YYMM"}
		bestScore = score + 5
	}

	if score := plausibility(first, second, now); score > 0 && score > bestScore {
		best = Expiry{Month: first, Year: fullYear(second), Layout: "MMYY"}
		bestScore = score
	}

	if bestScore == 0 {
		return Expiry{}, ErrInvalidExpiry
	}

	return best, nil
}

// plausibility scores a month/two digit year pair against now: cards expiring
// within the next ten years score highest, recently expired ones lower.
func plausibility(month, yy int, now time.Time) int {
	if !validMonth(month) {
		return 0
	}

	diff := yy - now.Year()%100
	switch {
	case diff < -50:
		diff += 100
	case diff > 50:
		diff -= 100
	}

	switch {
	case diff >= 0 && diff <= 10:
		return 100 - diff*3
	case diff >= -2 && diff < 0:
		return 80 + diff*10
	case diff > 10 && diff <= 15:
		return 70 - (diff-10)*5
	default:
		return 0
	}
}

func validMonth(m int) bool {
	return m >= 1 && m <= 12
}

func fullYear(yy int) int {
	if yy <= 50 {
		return 2000 + yy
	}
	return 1900 + yy
}
