// Package bytesize decodes human-readable sizes from config files and CLI
// flags. Quotas, file-size limits and multipart chunk bounds are all
// declared as strings like "5Mi" or "1GB" and land here.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes. Binary suffixes (Ki, Mi, Gi, Ti, with an
// optional trailing B) multiply by 1024, decimal ones (K, M, G, T, KB...)
// by 1000, and a bare number or trailing B means bytes. Suffixes are
// case-insensitive.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// sizePattern splits the input into a non-negative, possibly fractional
// number and an optional unit, tolerating whitespace around both.
var sizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

// units maps every accepted suffix, lowercased, to its multiplier. Built
// once from the short forms; the B-suffixed spellings are derived.
var units = map[string]ByteSize{"": B, "b": B}

func init() {
	for suffix, mult := range map[string]ByteSize{
		"k": KB, "m": MB, "g": GB, "t": TB,
		"ki": KiB, "mi": MiB, "gi": GiB, "ti": TiB,
	} {
		units[suffix] = mult
		units[suffix+"b"] = mult
	}
}

// ParseByteSize converts strings like "1Gi", "500MB", "1.5Mi" or "1024"
// into a ByteSize.
func ParseByteSize(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}
	number, suffix := m[1], m[2]

	mult, ok := units[strings.ToLower(suffix)]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", suffix)
	}

	// Integer inputs multiply exactly; only fractional ones go through
	// floats.
	if !strings.Contains(number, ".") {
		n, err := strconv.ParseUint(number, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", number)
		}
		return ByteSize(n) * mult, nil
	}

	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", number)
	}
	return ByteSize(f * float64(mult)), nil
}

// UnmarshalText lets ByteSize fields decode directly from config files and
// flag values.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String renders the size with its largest fitting binary unit, matching
// how limits are written in config files.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.2fTiB", float64(b)/float64(TiB))
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", b)
	}
}

// Int64 converts to the signed form the catalog stores quotas in.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
