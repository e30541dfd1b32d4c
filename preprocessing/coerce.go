package preprocessing

import (
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/insightml/dataset"
)

// Parsed is the result of coercing one raw cell.
type Parsed struct {
	Value float64
	OK    bool
}

// Missing is the NaN marker for a failed or absent value.
var Missing = Parsed{Value: math.NaN()}

// ParseNumber parses a decimal number. Missing tokens, NaN and Inf fail.
func ParseNumber(s string) Parsed {
	s = strings.TrimSpace(s)
	if dataset.IsMissing(s) {
		return Missing
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	return Parsed{Value: v, OK: true}
}

// ParseSlashNumber parses the part of s before the first '/', so
// "9.7513/12" yields 9.7513. Values without a slash parse as a whole.
func ParseSlashNumber(s string) Parsed {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return ParseNumber(s)
}

// ParseBool accepts the literals true and false in any case.
func ParseBool(s string) Parsed {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return Parsed{Value: 1, OK: true}
	case "false":
		return Parsed{Value: 0, OK: true}
	}
	return Parsed{Value: 0}
}

// NumericRatio returns the share of non-missing values that parse as numbers,
// and the number of non-missing values.
func NumericRatio(values []string) (ratio float64, observed int) {
	parsed := 0
	for _, s := range values {
		if dataset.IsMissing(s) {
			continue
		}
		observed++
		if ParseNumber(s).OK {
			parsed++
		}
	}
	if observed == 0 {
		return 0, 0
	}
	return float64(parsed) / float64(observed), observed
}

// IsBooleanColumn reports whether every value is a true/false literal. Empty
// columns and columns with missing cells are not boolean.
func IsBooleanColumn(values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, s := range values {
		if !ParseBool(s).OK {
			return false
		}
	}
	return true
}
