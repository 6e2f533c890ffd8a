package common

import (
	"strconv"
	"strings"
)

// ParseBlockNumber parses a watermark value stored as a decimal string.
// Surrounding whitespace is ignored; hex is rejected.
func ParseBlockNumber(val string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(val), 10, 64)
}

// FormatBlockNumber is the inverse of ParseBlockNumber.
func FormatBlockNumber(block uint64) string {
	return strconv.FormatUint(block, 10)
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
