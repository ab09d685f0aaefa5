// Package qris implements the EMV-style TLV codec used by the QRIS
// standard: parsing, dynamic amount injection, and CRC16/X.25
// checksum recomputation. The codec is pure and stateless.
package qris

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is a single tag-length-value entry in a QRIS payload. The
// length is derived from len(Value) on render, never stored directly,
// so a Record can never carry an inconsistent length.
type Record struct {
	Tag   string
	Value string
}

// Parse splits payload into its ordered TLV records, preserving
// original order so Render(Parse(s)) reproduces s exactly.
func Parse(payload string) ([]Record, error) {
	var records []Record
	i := 0
	for i < len(payload) {
		if i+4 > len(payload) {
			return nil, fmt.Errorf("qris: truncated record header at offset %d", i)
		}
		tag := payload[i : i+2]
		length, err := strconv.Atoi(payload[i+2 : i+4])
		if err != nil {
			return nil, fmt.Errorf("qris: invalid length field for tag %s: %w", tag, err)
		}
		start := i + 4
		end := start + length
		if end > len(payload) {
			return nil, fmt.Errorf("qris: value overruns payload for tag %s", tag)
		}
		records = append(records, Record{Tag: tag, Value: payload[start:end]})
		i = end
	}
	return records, nil
}

// Render serializes records back into TLV wire format.
func Render(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.Tag)
		fmt.Fprintf(&b, "%02d", len(r.Value))
		b.WriteString(r.Value)
	}
	return b.String()
}

func indexOfTag(records []Record, tag string) int {
	for i, r := range records {
		if r.Tag == tag {
			return i
		}
	}
	return -1
}
