// Package dataset holds tabular data as an ordered set of named columns and
// moves it between files (CSV, TSV, XLSX) and the cleaning and modelling code.
package dataset

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// Kind is the type of a column.
type Kind int

const (
	// KindRaw holds strings exactly as read from a file.
	KindRaw Kind = iota
	// KindNumeric holds float64 values; NaN marks a missing value.
	KindNumeric
	// KindCategorical holds integer label codes stored as float64.
	KindCategorical
	// KindBoolean holds 1 for true and 0 for false.
	KindBoolean
	// KindText holds strings that were not converted. Not usable as a feature.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	case KindBoolean:
		return "boolean"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return KindRaw, nil
	case "numeric", "number", "float":
		return KindNumeric, nil
	case "categorical", "category":
		return KindCategorical, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "text", "string":
		return KindText, nil
	}
	return KindRaw, errors.NewValidationError("kind", "unknown column kind", s)
}

// IsValued reports whether the kind stores float64 values.
func (k Kind) IsValued() bool {
	return k == KindNumeric || k == KindCategorical || k == KindBoolean
}

var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {},
}

// IsMissing reports whether a raw cell denotes a missing value.
func IsMissing(s string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Column is a named column. Exactly one of Strings or Values is populated,
// depending on Kind.
type Column struct {
	Name    string
	Kind    Kind
	Strings []string
	Values  []float64
}

// NewStringColumn creates a raw column.
func NewStringColumn(name string, values []string) *Column {
	return &Column{Name: name, Kind: KindRaw, Strings: values}
}

// NewValueColumn creates a column of the given valued kind.
func NewValueColumn(name string, kind Kind, values []float64) *Column {
	return &Column{Name: name, Kind: kind, Values: values}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	if c.Kind.IsValued() {
		return len(c.Values)
	}
	return len(c.Strings)
}

// MissingCount returns the number of missing cells.
func (c *Column) MissingCount() int {
	n := 0
	if c.Kind.IsValued() {
		for _, v := range c.Values {
			if math.IsNaN(v) {
				n++
			}
		}
		return n
	}
	for _, s := range c.Strings {
		if IsMissing(s) {
			n++
		}
	}
	return n
}

// Cell formats row i for display or export.
func (c *Column) Cell(i int) string {
	if !c.Kind.IsValued() {
		return c.Strings[i]
	}
	v := c.Values[i]
	switch {
	case math.IsNaN(v):
		return ""
	case c.Kind == KindBoolean:
		return strconv.FormatBool(v != 0)
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

// Copy returns a deep copy of the column.
func (c *Column) Copy() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Strings != nil {
		out.Strings = append([]string(nil), c.Strings...)
	}
	if c.Values != nil {
		out.Values = append([]float64(nil), c.Values...)
	}
	return out
}

// Frame is an ordered sequence of equally long named columns.
type Frame struct {
	columns []*Column
	index   map[string]int
}

// NewFrame creates a frame from columns. Names must be unique and lengths equal.
func NewFrame(columns ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		if err := f.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// FromRecords builds a raw frame from a header and data rows. Short rows are
// padded with empty (missing) cells; long rows are an error.
func FromRecords(header []string, rows [][]string) (*Frame, error) {
	if len(header) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset has no header")
	}
	cols := make([][]string, len(header))
	for i := range cols {
		cols[i] = make([]string, len(rows))
	}
	for r, row := range rows {
		if len(row) > len(header) {
			return nil, errors.NewDimensionError("dataset.FromRecords", len(header), len(row), 1)
		}
		for c, cell := range row {
			cols[c][r] = strings.TrimSpace(cell)
		}
	}

	f := &Frame{index: make(map[string]int, len(header))}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if err := f.AddColumn(NewStringColumn(name, cols[i])); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// AddColumn appends a column.
func (f *Frame) AddColumn(c *Column) error {
	if _, dup := f.index[c.Name]; dup {
		return errors.NewValidationError("column", "duplicate column name", c.Name)
	}
	if len(f.columns) > 0 && c.Len() != f.NumRows() {
		return errors.NewDimensionError("dataset.AddColumn", f.NumRows(), c.Len(), 0)
	}
	f.index[c.Name] = len(f.columns)
	f.columns = append(f.columns, c)
	return nil
}

// SetColumn replaces the column with the same name in place, keeping its
// position, or appends it when absent.
func (f *Frame) SetColumn(c *Column) error {
	i, ok := f.index[c.Name]
	if !ok {
		return f.AddColumn(c)
	}
	if c.Len() != f.NumRows() {
		return errors.NewDimensionError("dataset.SetColumn", f.NumRows(), c.Len(), 0)
	}
	f.columns[i] = c
	return nil
}

// Column looks up a column by name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// Has reports whether the frame has a column with the given name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Columns returns the columns in order. The slice must not be modified.
func (f *Frame) Columns() []*Column { return f.columns }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	if f == nil || len(f.columns) == 0 {
		return 0
	}
	return f.columns[0].Len()
}

// NumCols returns the number of columns.
func (f *Frame) NumCols() int {
	if f == nil {
		return 0
	}
	return len(f.columns)
}

// Empty reports whether the frame has no columns or no rows.
func (f *Frame) Empty() bool {
	return f.NumCols() == 0 || f.NumRows() == 0
}

// Copy returns a deep copy of the frame.
func (f *Frame) Copy() *Frame {
	out := &Frame{index: make(map[string]int, len(f.columns))}
	for _, c := range f.columns {
		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, c.Copy())
	}
	return out
}

// Head returns a copy of the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n > f.NumRows() {
		n = f.NumRows()
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return f.Select(rows)
}

// Select returns a copy holding the given rows in the given order.
func (f *Frame) Select(rows []int) *Frame {
	out := &Frame{index: make(map[string]int, len(f.columns))}
	for _, c := range f.columns {
		h := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind.IsValued() {
			h.Values = make([]float64, len(rows))
			for i, r := range rows {
				h.Values[i] = c.Values[r]
			}
		} else {
			h.Strings = make([]string, len(rows))
			for i, r := range rows {
				h.Strings[i] = c.Strings[r]
			}
		}
		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, h)
	}
	return out
}

// Rows returns every row formatted as strings, without the header.
func (f *Frame) Rows() [][]string {
	rows := make([][]string, f.NumRows())
	for i := range rows {
		row := make([]string, len(f.columns))
		for j, c := range f.columns {
			row[j] = c.Cell(i)
		}
		rows[i] = row
	}
	return rows
}

// MissingCount is the number of missing cells in one column.
type MissingCount struct {
	Column  string
	Missing int
}

// MissingCounts returns per-column missing counts in column order.
func (f *Frame) MissingCounts() []MissingCount {
	out := make([]MissingCount, len(f.columns))
	for i, c := range f.columns {
		out[i] = MissingCount{Column: c.Name, Missing: c.MissingCount()}
	}
	return out
}

// Missing returns the names, in the given order, that the frame lacks.
func (f *Frame) Missing(names []string) []string {
	var absent []string
	for _, n := range names {
		if !f.Has(n) {
			absent = append(absent, n)
		}
	}
	return absent
}

// Matrix assembles the named valued columns into an (n, len(names)) matrix.
func (f *Frame) Matrix(names []string) (*mat.Dense, error) {
	if absent := f.Missing(names); len(absent) > 0 {
		return nil, errors.NewMissingFeatureError("dataset.Matrix", absent)
	}
	n := f.NumRows()
	if n == 0 || len(names) == 0 {
		return nil, errors.ErrEmptyData
	}
	X := mat.NewDense(n, len(names), nil)
	for j, name := range names {
		c, _ := f.Column(name)
		if !c.Kind.IsValued() {
			return nil, errors.NewValueError("dataset.Matrix",
				"column "+strconv.Quote(name)+" is "+c.Kind.String()+", not numeric")
		}
		for i, v := range c.Values {
			X.Set(i, j, v)
		}
	}
	return X, nil
}

// Vector returns a copy of a valued column as a (n, 1) matrix.
func (f *Frame) Vector(name string) (*mat.Dense, error) {
	return f.Matrix([]string{name})
}
