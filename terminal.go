package cardid

import (
	"io"
	"time"

	"github.com/accessterm/cardid-go/tlv"
)

// defaultPDOL is used for the extended GPO when the card does not send its
// own PDOL. It asks for 33 bytes of terminal data.
var defaultPDOL = []tlv.DOLEntry{
	{Tag: tlv.TagTerminalQualifiers, Length: 4},
	{Tag: tlv.TagAmountAuthorised, Length: 6},
	{Tag: tlv.TagAmountOther, Length: 6},
	{Tag: tlv.TagTerminalCountry, Length: 2},
	{Tag: tlv.TagTVR, Length: 5},
	{Tag: tlv.TagTransactionCurrency, Length: 2},
	{Tag: tlv.TagTransactionDate, Length: 3},
	{Tag: tlv.TagTransactionType, Length: 1},
	{Tag: tlv.TagUnpredictableNumber, Length: 4},
}

// terminalData returns the values a contactless reader in Germany would
// offer: EMV mode TTQ, an amount of one cent in EUR, today's date.
func terminalData(now time.Time, random io.Reader) map[tlv.Tag][]byte {
	un := make([]byte, 4)
	if random != nil {
		// a zero unpredictable number is still accepted by every card seen so far
		_, _ = io.ReadFull(random, un)
	}

	return map[tlv.Tag][]byte{
		tlv.TagTerminalQualifiers:  {0x36, 0x00, 0x40, 0x00},
		tlv.TagAmountAuthorised:    {0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		tlv.TagAmountOther:         {0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		tlv.TagTerminalCountry:     {0x02, 0x76},
		tlv.TagTVR:                 {0x00, 0x00, 0x00, 0x00, 0x00},
		tlv.TagTransactionCurrency: {0x09, 0x78},
		tlv.TagTransactionDate:     {bcd(now.Year() % 100), bcd(int(now.Month())), bcd(now.Day())},
		tlv.TagTransactionType:     {0x00},
		tlv.TagUnpredictableNumber: un,
	}
}

func bcd(v int) byte {
	return byte((v/10)<<4 | v%10)
}
