package preprocessing

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/pkg/errors"
)

func rawFrame(t *testing.T, cols map[string][]string, order ...string) *dataset.Frame {
	t.Helper()
	var columns []*dataset.Column
	for _, name := range order {
		columns = append(columns, dataset.NewStringColumn(name, cols[name]))
	}
	f, err := dataset.NewFrame(columns...)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return f
}

func TestParseSlashNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"9.7513/12", 9.7513, true},
		{"42", 42, true},
		{" 7/ ", 7, true},
		{"100/2/3", 100, true},
		{"abc", 0, false},
		{"abc/12", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
		{"/12", 0, false},
	}
	for _, tt := range tests {
		got := ParseSlashNumber(tt.in)
		if got.OK != tt.wantOK {
			t.Errorf("ParseSlashNumber(%q).OK = %v, want %v", tt.in, got.OK, tt.wantOK)
			continue
		}
		if tt.wantOK && got.Value != tt.want {
			t.Errorf("ParseSlashNumber(%q) = %v, want %v", tt.in, got.Value, tt.want)
		}
		if !tt.wantOK && !math.IsNaN(got.Value) {
			t.Errorf("ParseSlashNumber(%q) should yield the missing marker, got %v", tt.in, got.Value)
		}
	}
}

func TestParseBool(t *testing.T) {
	if p := ParseBool("TRUE"); !p.OK || p.Value != 1 {
		t.Errorf("ParseBool(TRUE) = %+v", p)
	}
	if p := ParseBool(" false "); !p.OK || p.Value != 0 {
		t.Errorf("ParseBool(false) = %+v", p)
	}
	if p := ParseBool("yes"); p.OK {
		t.Errorf("ParseBool(yes) should fail")
	}
	if IsBooleanColumn([]string{"true", ""}) {
		t.Error("a column with a missing cell is not boolean")
	}
	if IsBooleanColumn(nil) {
		t.Error("an empty column is not boolean")
	}
}

func TestLabelEncoder(t *testing.T) {
	enc := NewLabelEncoder("Set")
	codes := enc.FitTransform([]string{"B", "A", "NA", "B", ""})

	wantClasses := []string{"A", "B", "nan"}
	if strings.Join(enc.Classes, ",") != strings.Join(wantClasses, ",") {
		t.Fatalf("Classes = %v, want %v", enc.Classes, wantClasses)
	}
	want := []float64{1, 0, 2, 1, 2}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("code[%d] = %v, want %v", i, codes[i], want[i])
		}
	}

	if s, ok := enc.Inverse(1); !ok || s != "B" {
		t.Errorf("Inverse(1) = %q, %v", s, ok)
	}
	if _, ok := enc.Inverse(1.5); ok {
		t.Error("Inverse of a non-integer code should fail")
	}

	clone := enc.Clone()
	codes, added := clone.TransformExtend([]string{"A", "D", "C", "D"})
	if strings.Join(added, ",") != "C,D" {
		t.Errorf("added = %v, want [C D]", added)
	}
	want = []float64{0, 4, 3, 4}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("extended code[%d] = %v, want %v", i, codes[i], want[i])
		}
	}
	if len(enc.Classes) != 3 {
		t.Error("Clone must not share Classes with the original")
	}
}

func TestDistinctCodesMatchDistinctValues(t *testing.T) {
	values := []string{"x", "y", "", "x", "z", "null", "y"}
	codes := NewLabelEncoder("c").FitTransform(values)

	distinctValues := map[string]bool{}
	for _, v := range values {
		distinctValues[Canonical(v)] = true
	}
	distinctCodes := map[float64]bool{}
	for _, c := range codes {
		distinctCodes[c] = true
	}
	if len(distinctCodes) != len(distinctValues) {
		t.Errorf("%d distinct codes for %d distinct values", len(distinctCodes), len(distinctValues))
	}
}

func TestMedianImputer(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(3, 2, []float64{
		1, nan,
		nan, nan,
		3, nan,
	})
	imp := NewMedianImputer()
	out, err := imp.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}
	if out.At(1, 0) != 2 {
		t.Errorf("imputed = %v, want 2", out.At(1, 0))
	}
	if !imp.Empty[1] || out.At(0, 1) != 0 {
		t.Errorf("all-missing column should be flagged and filled with 0")
	}
	if !math.IsNaN(X.At(1, 0)) {
		t.Error("Transform must not modify its input")
	}

	if _, err := NewMedianImputer().Transform(X); err == nil {
		t.Error("expected NotFittedError")
	}
}

func TestCleanSlashColumnsAndImputation(t *testing.T) {
	raw := rawFrame(t, map[string][]string{
		"Age":  {"9.7513/12", "42", "abc"},
		"Fees": {"100/3", "", "300"},
	}, "Age", "Fees")

	res, err := NewCleaner().Clean(raw)
	if err != nil {
		t.Fatal(err)
	}

	age, _ := res.Frame.Column("Age")
	want := []float64{9.7513, 42, 25.87565}
	for i := range want {
		if math.Abs(age.Values[i]-want[i]) > 1e-9 {
			t.Errorf("Age[%d] = %v, want %v", i, age.Values[i], want[i])
		}
	}

	r, _ := res.Report.Column("Age")
	if r.Rule != RuleSlash || r.Coerced != 1 || r.Imputed != 1 {
		t.Errorf("Age report = %+v", r)
	}
	fees, _ := res.Report.Column("Fees")
	if fees.Coerced != 0 || fees.Imputed != 1 || fees.ImputedValue != 200 {
		t.Errorf("Fees report = %+v", fees)
	}

	orig, _ := raw.Column("Age")
	if orig.Kind != dataset.KindRaw || orig.Strings[2] != "abc" {
		t.Error("Clean must not modify its input")
	}
}

func TestCleanNoMissingNumericValues(t *testing.T) {
	raw := rawFrame(t, map[string][]string{
		"Score": {"1", "2", "x", "4", "NA", "6"},
		"Set":   {"A", "", "B", "A", "B", "C"},
		"Empty": {"", "NA", "", "", "", ""},
	}, "Score", "Set", "Empty")

	res, err := NewCleaner(WithCategorical("Set")).Clean(raw)
	if err != nil {
		t.Fatal(err)
	}
	for _, col := range res.Frame.Columns() {
		if col.Kind == dataset.KindNumeric || col.Kind == dataset.KindCategorical {
			if n := col.MissingCount(); n != 0 {
				t.Errorf("column %s still has %d missing values", col.Name, n)
			}
		}
	}

	score, _ := res.Frame.Column("Score")
	if score.Values[2] != 3 || score.Values[4] != 3 {
		t.Errorf("Score imputed with %v/%v, want median 3", score.Values[2], score.Values[4])
	}
	empty, _ := res.Frame.Column("Empty")
	if empty.Kind != dataset.KindNumeric || empty.Values[0] != 0 {
		t.Errorf("all-missing column = %+v", empty)
	}
	if len(res.Report.Warnings) < 2 {
		t.Errorf("expected coercion and empty-column warnings, got %v", res.Report.Warnings)
	}
	if _, ok := res.Encoders["Set"]; !ok {
		t.Error("encoder for Set not returned")
	}
}

func TestCleanBooleanAndText(t *testing.T) {
	raw := rawFrame(t, map[string][]string{
		"Paid":  {"True", "false", "TRUE"},
		"Maybe": {"true", "", "false"},
		"Name":  {"ann", "bob", "7"},
		"Flag":  {"true", "no", "false"},
	}, "Paid", "Maybe", "Name", "Flag")

	res, err := NewCleaner(WithSchema(map[string]dataset.Kind{"Flag": dataset.KindBoolean})).Clean(raw)
	if err != nil {
		t.Fatal(err)
	}

	paid, _ := res.Frame.Column("Paid")
	if paid.Kind != dataset.KindBoolean || paid.Values[0] != 1 || paid.Values[1] != 0 {
		t.Errorf("Paid = %+v", paid)
	}
	maybe, _ := res.Frame.Column("Maybe")
	if maybe.Kind != dataset.KindText {
		t.Errorf("Maybe kind = %v, want text", maybe.Kind)
	}
	name, _ := res.Frame.Column("Name")
	if name.Kind != dataset.KindText {
		t.Errorf("Name kind = %v, want text", name.Kind)
	}
	flag, _ := res.Frame.Column("Flag")
	if flag.Kind != dataset.KindBoolean || flag.Values[1] != 0 {
		t.Errorf("declared boolean should coerce unknown values to false: %+v", flag)
	}
}

func TestCleanReusesEncoders(t *testing.T) {
	train := rawFrame(t, map[string][]string{"Set": {"B", "A", "C"}}, "Set")
	first, err := NewCleaner(WithCategorical("Set")).Clean(train)
	if err != nil {
		t.Fatal(err)
	}

	batch := rawFrame(t, map[string][]string{"Set": {"C", "D", "A"}}, "Set")
	second, err := NewCleaner(WithCategorical("Set"), WithEncoders(first.Encoders)).Clean(batch)
	if err != nil {
		t.Fatal(err)
	}

	col, _ := second.Frame.Column("Set")
	want := []float64{2, 3, 0}
	for i := range want {
		if col.Values[i] != want[i] {
			t.Errorf("code[%d] = %v, want %v", i, col.Values[i], want[i])
		}
	}
	r, _ := second.Report.Column("Set")
	if len(r.NewCategories) != 1 || r.NewCategories[0] != "D" {
		t.Errorf("NewCategories = %v", r.NewCategories)
	}
	if len(first.Encoders["Set"].Classes) != 3 {
		t.Error("reused encoder must not be mutated")
	}
}

func TestCleanFreshEncoderHasNoWarnings(t *testing.T) {
	raw := rawFrame(t, map[string][]string{"Set": {"b", "a", ""}}, "Set")

	res, err := NewCleaner(WithCategorical("Set")).Clean(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Report.Warnings) != 0 {
		t.Errorf("fresh categorical clean produced warnings: %v", res.Report.Warnings)
	}
	r, _ := res.Report.Column("Set")
	if len(r.NewCategories) != 0 {
		t.Errorf("NewCategories = %v, want none", r.NewCategories)
	}
	col, _ := res.Frame.Column("Set")
	if col.Values[0] != 1 || col.Values[1] != 0 {
		t.Errorf("codes = %v, want sorted class order", col.Values)
	}
}

func TestCleanTargetAndRequiredColumns(t *testing.T) {
	raw := rawFrame(t, map[string][]string{
		"x":      {"1", "2"},
		"Target": {"yes", "no"},
	}, "x", "Target")

	res, err := NewCleaner(WithTarget("Target")).Clean(raw)
	if err != nil {
		t.Fatal(err)
	}
	target, _ := res.Frame.Column("Target")
	if target.Kind != dataset.KindRaw || target.Strings[0] != "yes" {
		t.Errorf("target should be left untouched, got %+v", target)
	}

	_, err = NewCleaner(WithCategorical("Set"), WithRequireColumns()).Clean(raw)
	var cnf *errors.ColumnNotFoundError
	if !errors.As(err, &cnf) || cnf.Column != "Set" {
		t.Errorf("expected ColumnNotFoundError for Set, got %v", err)
	}

	// Without the option an absent categorical column is skipped.
	if _, err := NewCleaner(WithCategorical("Set")).Clean(raw); err != nil {
		t.Errorf("unexpected error %v", err)
	}

	if _, err := NewCleaner().Clean(nil); !errors.Is(err, errors.ErrEmptyData) {
		t.Errorf("nil frame: got %v", err)
	}
}

func TestReportMarkdown(t *testing.T) {
	raw := rawFrame(t, map[string][]string{
		"Age": {"9.7513/12", "42", "abc"},
		"Set": {"A", "B", "A"},
	}, "Age", "Set")
	res, err := NewCleaner(WithCategorical("Set")).Clean(raw)
	if err != nil {
		t.Fatal(err)
	}
	md := res.Report.Markdown()
	for _, want := range []string{
		"Fixed numeric columns with slash values: Age",
		"Encoded categorical variables: Set",
		"median imputation: Age",
		"| Age | numeric | slash-number | 1 | 1 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s.Mean[0]-2.5) > 1e-12 || s.Scale[1] != 1 {
		t.Errorf("Mean=%v Scale=%v", s.Mean, s.Scale)
	}
	col := mat.Col(nil, 0, out)
	sum := 0.0
	for _, v := range col {
		sum += v
	}
	if math.Abs(sum) > 1e-12 {
		t.Errorf("standardised column should have zero mean, sum=%v", sum)
	}

	back, err := s.InverseTransform(out)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Error("InverseTransform should restore the input")
	}

	if _, err := s.Transform(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("expected DimensionError for wrong width")
	}
}
