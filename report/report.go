package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/accessterm/cardid-go/types"
)

const rule = "============================================================"

// Write prints a human readable summary of sessions. PANs only appear masked.
func Write(w io.Writer, runID string, sessions []*types.CardSession, now time.Time) error {
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "CARD IDENTIFICATION REPORT")
	fmt.Fprintf(&b, "Run: %s\n", runID)
	fmt.Fprintf(&b, "Date: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(&b, rule)

	for _, s := range sessions {
		writeSession(&b, s)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeSession(b *strings.Builder, s *types.CardSession) {
	name := s.Name
	if name == "" {
		name = "unnamed"
	}

	fmt.Fprintf(b, "\nCard: %s\n", name)
	fmt.Fprintln(b, strings.Repeat("-", 40))
	fmt.Fprintf(b, "ATR: %s\n", s.ATR)

	if c := s.Classification; c != nil {
		fmt.Fprintf(b, "Classification: %s (%s)\n", c.Label, c.Kind)
		if c.Identifier != "" {
			fmt.Fprintf(b, "Identifier: %s\n", c.Identifier)
		}
	} else {
		fmt.Fprintf(b, "Aborted: %s\n", s.AbortReason)
	}

	if len(s.Applications) == 0 {
		fmt.Fprintln(b, "\nNo applications found")
	} else {
		fmt.Fprintf(b, "\nApplications (%d):\n", len(s.Applications))
		for _, app := range s.Applications {
			brand := string(app.Brand)
			if brand == "" {
				brand = "unknown"
			}
			fmt.Fprintf(b, "  * %s: %s (%s)\n", brand, app.AID, app.Source)
		}
	}

	if f := s.Fields; f != nil {
		fmt.Fprintln(b, "\nEMV data:")
		if f.MaskedPAN != "" {
			fmt.Fprintf(b, "  PAN: %s (luhn %t)\n", f.MaskedPAN, f.LuhnValid)
		}
		if f.Expiry != "" {
			fmt.Fprintf(b, "  Expiry: %s\n", f.Expiry)
		}
		if f.Cardholder != "" {
			fmt.Fprintf(b, "  Cardholder: %s\n", f.Cardholder)
		}
	}

	var errs []string
	for _, app := range s.Applications {
		errs = append(errs, app.ParseErrors...)
	}
	if len(errs) > 0 {
		fmt.Fprintf(b, "\nParse errors: %s\n", strings.Join(errs, ", "))
	}

	if n := len(s.Exchanges); n > 0 {
		var total time.Duration
		for _, e := range s.Exchanges {
			total += e.Elapsed
		}

		fmt.Fprintln(b, "\nStatistics:")
		fmt.Fprintf(b, "  APDUs sent: %d\n", n)
		fmt.Fprintf(b, "  Total time: %dms\n", total.Milliseconds())
		fmt.Fprintf(b, "  Average: %dms\n", total.Milliseconds()/int64(n))
	}
}

// Compare prints the ATR and AID differences of two sessions.
func Compare(w io.Writer, a, b *types.CardSession) error {
	var out strings.Builder

	fmt.Fprintln(&out, "CARD COMPARISON")
	fmt.Fprintf(&out, "Card 1: %s\n", a.Name)
	fmt.Fprintf(&out, "Card 2: %s\n", b.Name)
	fmt.Fprintln(&out, strings.Repeat("-", 40))

	if a.ATR.String() != b.ATR.String() {
		fmt.Fprintln(&out, "ATR differs:")
		fmt.Fprintf(&out, "  1: %s\n", a.ATR)
		fmt.Fprintf(&out, "  2: %s\n", b.ATR)
	} else {
		fmt.Fprintf(&out, "ATR identical: %s\n", a.ATR)
	}

	onlyA, onlyB, common := diffAIDs(aids(a), aids(b))
	list := func(title string, values []string) {
		if len(values) == 0 {
			return
		}
		fmt.Fprintf(&out, "\n%s:\n", title)
		for _, v := range values {
			fmt.Fprintf(&out, "  * %s\n", v)
		}
	}

	list("Only in card 1", onlyA)
	list("Only in card 2", onlyB)
	list("Common AIDs", common)

	_, err := io.WriteString(w, out.String())
	return err
}

func aids(s *types.CardSession) map[string]bool {
	out := make(map[string]bool, len(s.Applications))
	for _, app := range s.Applications {
		out[app.AID.String()] = true
	}

	return out
}

func diffAIDs(a, b map[string]bool) (onlyA, onlyB, common []string) {
	for aid := range a {
		if b[aid] {
			common = append(common, aid)
		} else {
			onlyA = append(onlyA, aid)
		}
	}

	for aid := range b {
		if !a[aid] {
			onlyB = append(onlyB, aid)
		}
	}

	sort.Strings(onlyA)
	sort.Strings(onlyB)
	sort.Strings(common)

	return onlyA, onlyB, common
}
