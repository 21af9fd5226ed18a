// Package human provides types that parse and format human-friendly
// representations of sizes, durations, and paths. The types implement
// flag.Value and the json, yaml, and text marshaling interfaces, so they can
// be used directly as command line options and configuration fields:
//
//	type replayConfig struct {
//		Timeout human.Duration `yaml:"timeout"`
//		Limit   human.Bytes    `yaml:"limit"`
//	}
package human

import (
	"strconv"
	"strings"
)

// splitNumber separates the leading decimal number of s from the unit that
// follows it, trimming the spaces around both.
func splitNumber(s string) (number, unit string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// ftoa formats value with at most two decimals, trimming trailing zeros.
func ftoa(value float64) string {
	s := strconv.FormatFloat(value, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
