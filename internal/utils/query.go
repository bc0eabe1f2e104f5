// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a base-10 int after trimming surrounding
// whitespace. Empty or unparsable input returns def.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0)  // 42
//	n = utils.AtoiDefault(" 7 ", 0)  // 7
//	n = utils.AtoiDefault("x", 5)    // 5
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampInt bounds n to [lo, hi]. hi <= 0 means no upper bound.
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if hi > 0 && n > hi {
		return hi
	}
	return n
}
