package preprocessing

import (
	"math"
	"strings"

	"github.com/google/btree"

	"github.com/YuminosukeSato/insightml/dataset"
)

// MissingCategory is the category every missing cell is encoded as.
const MissingCategory = "nan"

// Canonical maps a raw cell to the string it is encoded under.
func Canonical(s string) string {
	if dataset.IsMissing(s) {
		return MissingCategory
	}
	return strings.TrimSpace(s)
}

// LabelEncoder maps the distinct strings of a column to integer codes. After
// Fit, Classes is sorted and a value's code is its index. Extend appends
// unseen values after the fitted ones, so existing codes never move.
type LabelEncoder struct {
	Column  string
	Classes []string
}

// NewLabelEncoder returns an unfitted encoder for the named column.
func NewLabelEncoder(column string) *LabelEncoder {
	return &LabelEncoder{Column: column}
}

// Fit replaces Classes with the sorted distinct canonical values.
func (e *LabelEncoder) Fit(values []string) *LabelEncoder {
	set := btree.NewOrderedG[string](16)
	for _, v := range values {
		set.ReplaceOrInsert(Canonical(v))
	}
	classes := make([]string, 0, set.Len())
	set.Ascend(func(item string) bool {
		classes = append(classes, item)
		return true
	})
	e.Classes = classes
	return e
}

// FitTransform fits the encoder and encodes values.
func (e *LabelEncoder) FitTransform(values []string) []float64 {
	codes, _ := e.Fit(values).Transform(values)
	return codes
}

// Transform encodes values. Values not in Classes are returned in unseen
// (sorted, distinct) and encoded as NaN.
func (e *LabelEncoder) Transform(values []string) (codes []float64, unseen []string) {
	index := e.index()
	missing := btree.NewOrderedG[string](16)
	codes = make([]float64, len(values))
	for i, v := range values {
		c, ok := index[Canonical(v)]
		if !ok {
			missing.ReplaceOrInsert(Canonical(v))
			codes[i] = math.NaN()
			continue
		}
		codes[i] = float64(c)
	}
	missing.Ascend(func(item string) bool {
		unseen = append(unseen, item)
		return true
	})
	return codes, unseen
}

// TransformExtend encodes values, first appending any unseen values to
// Classes in sorted order. It returns the appended values.
func (e *LabelEncoder) TransformExtend(values []string) (codes []float64, added []string) {
	_, unseen := e.Transform(values)
	e.Classes = append(e.Classes, unseen...)
	codes, _ = e.Transform(values)
	return codes, unseen
}

// Inverse returns the string for a code.
func (e *LabelEncoder) Inverse(code float64) (string, bool) {
	i := int(code)
	if float64(i) != code || i < 0 || i >= len(e.Classes) {
		return "", false
	}
	return e.Classes[i], true
}

// Code returns the code for a raw value.
func (e *LabelEncoder) Code(value string) (int, bool) {
	c, ok := e.index()[Canonical(value)]
	return c, ok
}

// Clone returns an independent copy.
func (e *LabelEncoder) Clone() *LabelEncoder {
	return &LabelEncoder{Column: e.Column, Classes: append([]string(nil), e.Classes...)}
}

func (e *LabelEncoder) index() map[string]int {
	m := make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		m[c] = i
	}
	return m
}
