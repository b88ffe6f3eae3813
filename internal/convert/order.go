package convert

import (
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// prefixPattern matches a leading numeric prefix, optionally followed by a
// single separator: "1", "01", "1.", "1_", "1-".
var prefixPattern = regexp.MustCompile(`^\s*(\d+)[\s._-]?`)

// numericPrefix returns the ordinal encoded in the file name's numeric
// prefix, or +Inf when the name carries none.
func numericPrefix(path string) float64 {
	m := prefixPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return math.Inf(1)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.Inf(1)
	}
	return n
}

// SortByPrefix orders extracted files by their numeric name prefix so that
// the merged document reproduces the scanned page order. Ties are broken by
// case-insensitive, numeric-aware name comparison. The input slice is not
// modified.
func SortByPrefix(files []string) []string {
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := numericPrefix(sorted[i]), numericPrefix(sorted[j])
		if pi != pj {
			return pi < pj
		}
		a := strings.ToLower(filepath.Base(sorted[i]))
		b := strings.ToLower(filepath.Base(sorted[j]))
		return compareNatural(a, b) < 0
	})
	return sorted
}

// compareNatural compares two strings treating digit runs as numbers, so
// "page2" sorts before "page10".
func compareNatural(a, b string) int {
	for a != "" && b != "" {
		aDigits, aRest := splitLeading(a)
		bDigits, bRest := splitLeading(b)

		if aDigits != "" && bDigits != "" {
			an := strings.TrimLeft(aDigits, "0")
			bn := strings.TrimLeft(bDigits, "0")
			if len(an) != len(bn) {
				if len(an) < len(bn) {
					return -1
				}
				return 1
			}
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		} else if a[0] != b[0] {
			if a[0] < b[0] {
				return -1
			}
			return 1
		} else {
			aRest, bRest = a[1:], b[1:]
		}
		a, b = aRest, bRest
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

// splitLeading splits off a leading digit run, returning ("", s) when the
// string does not start with a digit.
func splitLeading(s string) (digits, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}
