package helper

import (
	"sort"
	"strconv"
	"strings"
)

// SortFlowLines orders flow-record lines ascending the way a
// numeric-aware sort on the leading field would: the leading numeric
// value decides, and ties fall back to plain string comparison of the
// full line (which for the fixed-width timestamp prefix emitted by the
// dump tool is chronological order). The sort is stable.
func SortFlowLines(lines []string) {
	sort.SliceStable(lines, func(i, j int) bool {
		return LessFlowLine(lines[i], lines[j])
	})
}

// LessFlowLine reports whether line a sorts before line b.
func LessFlowLine(a, b string) bool {
	na, aok := leadingNumber(a)
	nb, bok := leadingNumber(b)
	switch {
	case aok && bok && na != nb:
		return na < nb
	case aok != bok:
		// Lines without a leading number sort first, matching sort -n.
		return !aok
	default:
		return strings.Compare(a, b) < 0
	}
}

// leadingNumber parses the run of digits (with at most one decimal
// point) at the start of s.
func leadingNumber(s string) (float64, bool) {
	end := 0
	dot := false
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' {
			end++
			continue
		}
		if c == '.' && !dot && end > 0 {
			dot = true
			end++
			continue
		}
		break
	}
	// A trailing dot belongs to whatever follows, not the number.
	if end > 0 && s[end-1] == '.' {
		end--
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
