package config

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeSuffixes maps unit suffixes to byte multipliers. Longer suffixes come
// first so "MiB" is not mistaken for "B".
var sizeSuffixes = []struct {
	suffix     string
	multiplier float64
}{
	{"TIB", 1 << 40},
	{"GIB", 1 << 30},
	{"MIB", 1 << 20},
	{"KIB", 1 << 10},
	{"TB", 1e12},
	{"GB", 1e9},
	{"MB", 1e6},
	{"KB", 1e3},
	{"B", 1},
}

// ParseSize converts a human-readable size to bytes. Both SI (KB, MB, GB,
// TB) and IEC (KiB, MiB, GiB, TiB) suffixes are accepted, case-insensitively.
// A bare integer is raw bytes; "" and "0" are zero.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	upper := strings.ToUpper(s)

	for _, sf := range sizeSuffixes {
		if !strings.HasSuffix(upper, sf.suffix) {
			continue
		}

		num := strings.TrimSpace(s[:len(s)-len(sf.suffix)])

		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}

		if n < 0 {
			return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
		}

		return int64(n * sf.multiplier), nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	return n, nil
}

// ParseRate parses a bandwidth limit such as "5MB/s" or "512KiB" into bytes
// per second. The "/s" suffix is optional; "0" means unlimited.
func ParseRate(s string) (int64, error) {
	s = strings.TrimSpace(s)

	trimmed := strings.TrimSuffix(strings.TrimSuffix(s, "/s"), "/S")

	n, err := ParseSize(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}

	return n, nil
}
