package emv

import (
	"time"

	"github.com/accessterm/cardid-go/identifiers"
	"github.com/accessterm/cardid-go/tlv"
	"github.com/accessterm/cardid-go/types"
)

// Extractor turns the decoded records of one application into CardFields.
type Extractor struct {
	// Key keys the PAN fingerprint. An empty key gives an unkeyed digest.
	Key []byte
	Now func() time.Time
}

// Extract looks for the PAN in tag 5A first, then in the track 2 equivalents
// 57 and 9F6B. Expiry comes from 5F24 with the brand's layout, or from track 2.
func (x *Extractor) Extract(nodes []*tlv.Node, brand identifiers.Brand) *types.CardFields {
	now := time.Now
	if x.Now != nil {
		now = x.Now
	}

	fields := &types.CardFields{}

	var (
		track    *Track2
		trackTag tlv.Tag
	)
	for _, tag := range []tlv.Tag{tlv.TagTrack2, tlv.TagTrack2MagStripe} {
		if n := tlv.Find(nodes, tag); n != nil {
			if t, err := ParseTrack2(n.Value); err == nil {
				track = t
				trackTag = tag
				fields.ServiceCode = t.ServiceCode
				break
			}
		}
	}

	if n := tlv.Find(nodes, tlv.TagPAN); n != nil {
		x.setPAN(fields, ParsePAN(n.Value), tlv.TagPAN.String())
	}

	if track != nil && (!fields.HasPAN() || !fields.PANValid) && track.PAN.Digits != "" {
		x.setPAN(fields, track.PAN, trackTag.String())
	}

	if n := tlv.Find(nodes, tlv.TagExpiry); n != nil {
		fields.ExpiryRaw = types.HexBytes(n.Value).String()
		if e, err := ParseExpiry(n.Value, identifiers.ExpiryLayoutFor(brand), now()); err == nil {
			fields.Expiry = e.String()
			fields.ExpiryValid = true
		}
	}

	if !fields.ExpiryValid && track != nil && track.Expiry != "" {
		fields.ExpiryRaw = track.Expiry
		if e, err := ParseTrack2Expiry(track.Expiry); err == nil {
			fields.Expiry = e.String()
			fields.ExpiryValid = true
		}
	}

	if n := tlv.Find(nodes, tlv.TagCardholderName); n != nil {
		fields.Cardholder = ParseCardholder(n.Value)
	}

	return fields
}

func (x *Extractor) setPAN(fields *types.CardFields, pan PAN, source string) {
	fields.PAN = pan.Digits
	fields.PANSource = source
	fields.PANValid = pan.Valid
	fields.LuhnValid = pan.LuhnValid
	if pan.Valid {
		fields.MaskedPAN = MaskPAN(pan.Digits)
		if fp, err := Fingerprint(pan.Digits, x.Key); err == nil {
			fields.Fingerprint = fp
		}
	}
}
