package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size value that supports human-readable parsing.
// Units use a binary (1024) base.
//
// Examples:
//   - "9.5MB" = 9.5 * 1024 * 1024 bytes
//   - "500KB" = 500 * 1024 bytes
//   - "5242880" = 5242880 bytes (raw number still works)
type ByteSize int64

// Size units.
const (
	Byte     ByteSize = 1
	Kilobyte          = 1024 * Byte
	Megabyte          = 1024 * Kilobyte
	Gigabyte          = 1024 * Megabyte
	Terabyte          = 1024 * Gigabyte
)

var byteUnits = map[string]ByteSize{
	"":   Byte,
	"b":  Byte,
	"k":  Kilobyte,
	"kb": Kilobyte, "kib": Kilobyte,
	"m":  Megabyte,
	"mb": Megabyte, "mib": Megabyte,
	"g":  Gigabyte,
	"gb": Gigabyte, "gib": Gigabyte,
	"t":  Terabyte,
	"tb": Terabyte, "tib": Terabyte,
}

var byteSizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// ParseByteSize parses a human-readable byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}
	m := byteSizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", m[1], err)
	}
	unit, ok := byteUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", m[2])
	}
	return ByteSize(value * float64(unit)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// KB returns the size in binary kilobytes, the unit the transcoder's ceiling is expressed in.
func (b ByteSize) KB() float64 {
	return float64(b) / float64(Kilobyte)
}

// String returns the size using the largest unit that keeps the value >= 1.
func (b ByteSize) String() string {
	if b == 0 {
		return "0B"
	}
	sign := ""
	if b < 0 {
		sign = "-"
		b = -b
	}
	for _, u := range []struct {
		size ByteSize
		name string
	}{
		{Terabyte, "TB"},
		{Gigabyte, "GB"},
		{Megabyte, "MB"},
		{Kilobyte, "KB"},
	} {
		if b >= u.size {
			v := strconv.FormatFloat(float64(b)/float64(u.size), 'f', 2, 64)
			v = strings.TrimRight(strings.TrimRight(v, "0"), ".")
			return sign + v + u.name
		}
	}
	return sign + strconv.FormatInt(int64(b), 10) + "B"
}
