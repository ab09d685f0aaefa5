package qris

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidQris is returned for malformed TLV payloads or checksum
// mismatches.
var ErrInvalidQris = errors.New("qris: invalid payload")

const (
	tagPointOfInitiation = "01"
	tagAmount            = "54"
	tagCountryCode       = "58"
	tagCRC               = "63"

	modeStatic  = "11"
	modeDynamic = "12"
)

// Codec parses and renders QRIS dynamic payloads. It implements
// ports.QRISCodec and carries no state.
type Codec struct{}

// NewCodec constructs a Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Inject produces a dynamic QRIS payload from a static source: it
// switches the point-of-initiation indicator to dynamic, injects the
// amount at tag 54, and recomputes the checksum.
func (c *Codec) Inject(staticSource string, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrInvalidQris)
	}

	records, err := Parse(staticSource)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidQris, err)
	}
	records = stripTag(records, tagCRC)
	records = setPointOfInitiation(records, modeDynamic)
	records = setAmount(records, amount)

	body := Render(records)
	return appendChecksum(body), nil
}

// Validate recomputes the checksum over payload and compares it
// against the trailing tag-63 value, case-insensitively.
func (c *Codec) Validate(payload string) error {
	if len(payload) < 8 {
		return ErrInvalidQris
	}

	trailerHeaderLen := 4 // "63" + "04"
	trailerLen := 4       // four hex digits
	if len(payload) < trailerHeaderLen+trailerLen {
		return ErrInvalidQris
	}

	bodyWithHeader := payload[:len(payload)-trailerLen]
	trailer := payload[len(payload)-trailerLen:]

	if !strings.HasSuffix(bodyWithHeader, tagCRC+"04") {
		return ErrInvalidQris
	}

	want, err := strconv.ParseUint(trailer, 16, 16)
	if err != nil {
		return fmt.Errorf("%w: malformed checksum trailer", ErrInvalidQris)
	}

	got := ChecksumX25([]byte(bodyWithHeader))
	if uint16(want) != got {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidQris)
	}

	withoutCRC := payload[:len(payload)-trailerHeaderLen-trailerLen]
	if _, err := Parse(withoutCRC); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQris, err)
	}
	return nil
}

// appendChecksum expects a body with no tag-63 record (callers remove
// it first; nothing is stripped here), appends the "6304" header,
// computes CRC-16/X.25 over everything up to and
// including that header, and appends the four uppercase hex digits.
func appendChecksum(body string) string {
	withHeader := body + tagCRC + "04"
	crc := ChecksumX25([]byte(withHeader))
	return fmt.Sprintf("%s%04X", withHeader, crc)
}

func stripTag(records []Record, tag string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Tag == tag {
			continue
		}
		out = append(out, r)
	}
	return out
}

func setPointOfInitiation(records []Record, mode string) []Record {
	idx := indexOfTag(records, tagPointOfInitiation)
	if idx >= 0 {
		records[idx].Value = mode
		return records
	}
	// Not present: insert at the front, matching canonical ordering
	// where the point-of-initiation indicator leads the payload body.
	out := make([]Record, 0, len(records)+1)
	out = append(out, Record{Tag: tagPointOfInitiation, Value: mode})
	out = append(out, records...)
	return out
}

func setAmount(records []Record, amount int64) []Record {
	value := strconv.FormatInt(amount, 10)

	idx := indexOfTag(records, tagAmount)
	if idx >= 0 {
		records[idx].Value = value
		return records
	}

	newRecord := Record{Tag: tagAmount, Value: value}
	countryIdx := indexOfTag(records, tagCountryCode)
	if countryIdx < 0 {
		return append(records, newRecord)
	}

	out := make([]Record, 0, len(records)+1)
	out = append(out, records[:countryIdx]...)
	out = append(out, newRecord)
	out = append(out, records[countryIdx:]...)
	return out
}
