// Package util provides small helpers shared across the warden packages.
package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// JoinInts joins integers with sep, for example squad numbers "1 & 3".
func JoinInts(vals []int, sep string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, sep)
}

// Seconds rounds d up to whole seconds.
func Seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// Minutes rounds d up to whole minutes.
func Minutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

// FirstWord splits s into its first whitespace-separated word and the rest.
func FirstWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	word, rest, _ = strings.Cut(s, " ")
	return word, strings.TrimSpace(rest)
}
