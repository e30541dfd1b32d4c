package preprocessing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
)

// DefaultNumericThreshold is the share of non-missing values that must parse
// as numbers for an undeclared column to be treated as numeric.
const DefaultNumericThreshold = 0.8

// DefaultSlashColumns are the columns whose values look like "9.7513/12".
func DefaultSlashColumns() []string { return []string{"Age", "Fees"} }

// Rules recorded per column in a Report.
const (
	RuleSlash       = "slash-number"
	RuleCategorical = "label-encoded"
	RuleBoolean     = "boolean"
	RuleNumeric     = "numeric"
	RuleText        = "text"
	RuleTarget      = "target"
	RuleUnchanged   = "unchanged"
)

// Cleaner turns a raw frame into a typed one. It is safe for concurrent use;
// Clean never mutates the Cleaner or its input.
type Cleaner struct {
	slashColumns     []string
	categorical      []string
	schema           map[string]dataset.Kind
	numericThreshold float64
	encoders         map[string]*LabelEncoder
	target           string
	requireColumns   bool
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithSlashColumns sets the columns parsed with ParseSlashNumber.
func WithSlashColumns(names ...string) Option {
	return func(c *Cleaner) { c.slashColumns = append([]string(nil), names...) }
}

// WithCategorical sets the columns that are label-encoded.
func WithCategorical(names ...string) Option {
	return func(c *Cleaner) { c.categorical = append([]string(nil), names...) }
}

// WithSchema declares per-column kinds. Undeclared columns are inferred.
func WithSchema(schema map[string]dataset.Kind) Option {
	return func(c *Cleaner) {
		c.schema = make(map[string]dataset.Kind, len(schema))
		for k, v := range schema {
			c.schema[k] = v
		}
	}
}

// WithNumericThreshold sets the numeric inference threshold.
func WithNumericThreshold(t float64) Option {
	return func(c *Cleaner) { c.numericThreshold = t }
}

// WithEncoders reuses previously fitted encoders for the categorical columns
// they cover. The encoders are cloned; unseen categories extend the clones.
func WithEncoders(encoders map[string]*LabelEncoder) Option {
	return func(c *Cleaner) { c.encoders = encoders }
}

// WithTarget names the target column. It is left untouched by cleaning.
func WithTarget(name string) Option {
	return func(c *Cleaner) { c.target = name }
}

// WithRequireColumns makes Clean fail when a declared categorical or target
// column is absent.
func WithRequireColumns() Option {
	return func(c *Cleaner) { c.requireColumns = true }
}

// NewCleaner returns a Cleaner with the default slash columns and threshold.
func NewCleaner(opts ...Option) *Cleaner {
	c := &Cleaner{
		slashColumns:     DefaultSlashColumns(),
		numericThreshold: DefaultNumericThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ColumnReport describes what cleaning did to one column.
type ColumnReport struct {
	Name          string
	Kind          dataset.Kind
	Rule          string
	Coerced       int
	Imputed       int
	ImputedValue  float64
	NewCategories []string
}

// Report summarises a Clean call.
type Report struct {
	Rows     int
	Columns  []ColumnReport
	Warnings []string
}

// Result is the output of Clean.
type Result struct {
	Frame    *dataset.Frame
	Encoders map[string]*LabelEncoder
	Report   *Report
}

// Clean runs, in order: slash-number parsing, label encoding, boolean
// conversion, numeric coercion and median imputation. Malformed values never
// cause an error; they become missing and are imputed.
func (c *Cleaner) Clean(raw *dataset.Frame) (*Result, error) {
	if raw == nil || raw.NumCols() == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "clean")
	}
	if c.requireColumns {
		if err := c.checkRequired(raw); err != nil {
			return nil, err
		}
	}

	logger := log.GetLoggerWithName("preprocessing")
	frame := raw.Copy()
	reports := make(map[string]*ColumnReport, frame.NumCols())
	for _, col := range frame.Columns() {
		reports[col.Name] = &ColumnReport{Name: col.Name, Kind: col.Kind, Rule: RuleUnchanged}
	}
	res := &Result{Encoders: make(map[string]*LabelEncoder), Report: &Report{Rows: frame.NumRows()}}

	pending := func(col *dataset.Column) bool {
		return col.Kind == dataset.KindRaw && col.Name != c.target
	}

	for _, name := range c.slashColumns {
		col, ok := frame.Column(name)
		if !ok || !pending(col) {
			continue
		}
		coerceInto(col, ParseSlashNumber, reports[name], RuleSlash)
	}

	for _, name := range c.categoricalColumns() {
		col, ok := frame.Column(name)
		if !ok || !pending(col) {
			continue
		}
		enc, reused := c.encoderFor(name)
		var codes []float64
		var added []string
		if reused {
			codes, added = enc.TransformExtend(col.Strings)
		} else {
			codes = enc.FitTransform(col.Strings)
		}
		res.Encoders[name] = enc
		*col = dataset.Column{Name: name, Kind: dataset.KindCategorical, Values: codes}
		r := reports[name]
		r.Kind, r.Rule, r.NewCategories = dataset.KindCategorical, RuleCategorical, added
		if len(added) > 0 {
			res.Report.warn(errors.NewDataConversionWarning(name, "string", "category", len(added),
				"categories unseen at training appended: "+strings.Join(added, ", ")))
		}
	}

	for _, col := range frame.Columns() {
		if !pending(col) {
			if col.Name == c.target {
				reports[col.Name].Rule = RuleTarget
			}
			continue
		}
		r := reports[col.Name]
		declared, isDeclared := c.schema[col.Name]
		switch {
		case isDeclared && declared == dataset.KindBoolean,
			!isDeclared && IsBooleanColumn(col.Strings):
			coerceInto(col, ParseBool, r, RuleBoolean)
			col.Kind, r.Kind = dataset.KindBoolean, dataset.KindBoolean
			for i, v := range col.Values {
				if math.IsNaN(v) {
					col.Values[i] = 0
				}
			}
		case isDeclared && declared == dataset.KindNumeric:
			coerceInto(col, ParseNumber, r, RuleNumeric)
		case isDeclared && declared == dataset.KindText:
			col.Kind, r.Kind, r.Rule = dataset.KindText, dataset.KindText, RuleText
		default:
			ratio, observed := NumericRatio(col.Strings)
			if observed == 0 || ratio >= c.numericThreshold {
				coerceInto(col, ParseNumber, r, RuleNumeric)
			} else {
				col.Kind, r.Kind, r.Rule = dataset.KindText, dataset.KindText, RuleText
			}
		}
	}

	for _, col := range frame.Columns() {
		if r := reports[col.Name]; r.Coerced > 0 {
			res.Report.warn(errors.NewDataConversionWarning(r.Name, "string", r.Kind.String(), r.Coerced,
				"unparsable values set to missing"))
		}
	}

	if err := c.impute(frame, reports, res.Report); err != nil {
		return nil, err
	}

	for _, col := range frame.Columns() {
		res.Report.Columns = append(res.Report.Columns, *reports[col.Name])
	}
	res.Frame = frame

	logger.Debug("Dataset cleaned",
		log.OperationKey, log.OperationClean,
		log.SamplesKey, frame.NumRows(),
		log.FeaturesKey, frame.NumCols(),
		"warnings", len(res.Report.Warnings),
	)
	return res, nil
}

func (c *Cleaner) checkRequired(raw *dataset.Frame) error {
	for _, name := range c.categoricalColumns() {
		if !raw.Has(name) {
			return errors.NewColumnNotFoundError(name, "categorical")
		}
	}
	if c.target != "" && !raw.Has(c.target) {
		return errors.NewColumnNotFoundError(c.target, "target")
	}
	return nil
}

// categoricalColumns merges the explicit list with schema declarations.
func (c *Cleaner) categoricalColumns() []string {
	seen := make(map[string]bool, len(c.categorical))
	out := make([]string, 0, len(c.categorical))
	for _, n := range c.categorical {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	var extra []string
	for n, k := range c.schema {
		if k == dataset.KindCategorical && !seen[n] {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// encoderFor returns a copy of the persisted encoder for name, or a fresh one.
func (c *Cleaner) encoderFor(name string) (*LabelEncoder, bool) {
	if enc, ok := c.encoders[name]; ok && enc != nil {
		return enc.Clone(), true
	}
	return NewLabelEncoder(name), false
}

func coerceInto(col *dataset.Column, parse func(string) Parsed, r *ColumnReport, rule string) {
	values := make([]float64, len(col.Strings))
	for i, s := range col.Strings {
		p := parse(s)
		values[i] = p.Value
		if !p.OK {
			values[i] = math.NaN()
			if !dataset.IsMissing(s) {
				r.Coerced++
			}
		}
	}
	*col = dataset.Column{Name: col.Name, Kind: dataset.KindNumeric, Values: values}
	r.Kind, r.Rule = dataset.KindNumeric, rule
}

// impute fills NaN in every numeric and categorical column with the column
// median of this batch.
func (c *Cleaner) impute(frame *dataset.Frame, reports map[string]*ColumnReport, report *Report) error {
	var cols []*dataset.Column
	for _, col := range frame.Columns() {
		if col.Kind == dataset.KindNumeric || col.Kind == dataset.KindCategorical {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 || frame.NumRows() == 0 {
		return nil
	}

	n := frame.NumRows()
	X := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		X.SetCol(j, col.Values)
	}
	imputer := NewMedianImputer()
	filled, err := imputer.FitTransform(X)
	if err != nil {
		return errors.Wrap(err, "median imputation")
	}

	for j, col := range cols {
		r := reports[col.Name]
		r.Imputed = col.MissingCount()
		if r.Imputed == 0 {
			continue
		}
		r.ImputedValue = imputer.Statistics[j]
		mat.Col(col.Values, j, filled)
		if imputer.Empty[j] {
			report.warn(errors.NewDataConversionWarning(col.Name, "missing", "float64", r.Imputed,
				"column has no observed values; filled with 0"))
		}
	}
	return nil
}

func (r *Report) warn(w error) {
	r.Warnings = append(r.Warnings, w.Error())
	errors.Warn(w)
}

// Column returns the report for one column.
func (r *Report) Column(name string) (ColumnReport, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnReport{}, false
}

// Markdown renders the report for the dashboard.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("### Cleaning report\n\n")
	fmt.Fprintf(&b, "- Rows processed: %d\n", r.Rows)

	byRule := map[string][]string{}
	var imputed []string
	for _, c := range r.Columns {
		byRule[c.Rule] = append(byRule[c.Rule], c.Name)
		if c.Imputed > 0 {
			imputed = append(imputed, fmt.Sprintf("%s (%d → %g)", c.Name, c.Imputed, c.ImputedValue))
		}
	}
	line := func(label, rule string) {
		if names := byRule[rule]; len(names) > 0 {
			fmt.Fprintf(&b, "- %s: %s\n", label, strings.Join(names, ", "))
		}
	}
	line("Fixed numeric columns with slash values", RuleSlash)
	line("Encoded categorical variables", RuleCategorical)
	line("Converted boolean columns", RuleBoolean)
	line("Coerced numeric columns", RuleNumeric)
	line("Left as text", RuleText)
	if len(imputed) > 0 {
		fmt.Fprintf(&b, "- Handled missing values with median imputation: %s\n", strings.Join(imputed, ", "))
	} else {
		b.WriteString("- No missing numeric values to impute\n")
	}

	b.WriteString("\n| Column | Kind | Rule | Coerced | Imputed |\n|---|---|---|---|---|\n")
	for _, c := range r.Columns {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %d |\n", c.Name, c.Kind, c.Rule, c.Coerced, c.Imputed)
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n**Warnings**\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}
