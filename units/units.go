// Package units parses and formats human readable byte sizes.
//
// Decimal-looking suffixes are binary multiples, as in most disk tools:
// "1KB" is 1024 bytes and "128MB" is 134217728 bytes.
package units

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
)

var sizeRe = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([a-zA-Z]*)\s*$`)

var binaryUnits = map[string]string{
	"":    "B",
	"b":   "B",
	"k":   "KiB",
	"kb":  "KiB",
	"kib": "KiB",
	"m":   "MiB",
	"mb":  "MiB",
	"mib": "MiB",
	"g":   "GiB",
	"gb":  "GiB",
	"gib": "GiB",
	"t":   "TiB",
	"tb":  "TiB",
	"tib": "TiB",
	"p":   "PiB",
	"pb":  "PiB",
	"pib": "PiB",
	"e":   "EiB",
	"eb":  "EiB",
	"eib": "EiB",
}

// ParseSize converts strings such as "1GB", "128mb" or "4096" to bytes.
func ParseSize(s string) (int64, error) {
	m := sizeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid data size %q", s)
	}
	unit, ok := binaryUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("invalid data size %q: unknown unit %q", s, m[2])
	}
	n, err := humanize.ParseBytes(m[1] + " " + unit)
	if err != nil {
		return 0, fmt.Errorf("invalid data size %q: %v", s, err)
	}
	if n > 1<<63-1 {
		return 0, fmt.Errorf("invalid data size %q: too large", s)
	}
	return int64(n), nil
}

// FormatSize renders n bytes with binary units, e.g. "128 MiB".
func FormatSize(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

// FormatRate renders a bytes-per-second value, e.g. "512 MiB/s".
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}
