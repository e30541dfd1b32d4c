// Package chart renders explanation results as PNG images with gonum/plot.
// Every function returns the encoded image; nothing is written to disk.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// MaxFeatures is the number of features drawn in bar and summary plots.
const MaxFeatures = 20

var (
	barColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	shapColor = color.RGBA{R: 255, G: 0, B: 82, A: 255}
	lowColor  = color.RGBA{R: 0, G: 139, B: 251, A: 255}
	grayColor = color.RGBA{R: 160, G: 160, B: 160, A: 255}
)

// render encodes p as PNG. Panics inside plot are returned as errors.
func render(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	var buf bytes.Buffer
	err := errors.SafeExecute("chart.render", func() error {
		wt, err := p.WriterTo(w, h, "png")
		if err != nil {
			return err
		}
		_, err = wt.WriteTo(&buf)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "render chart")
	}
	return buf.Bytes(), nil
}

func height(rows int) vg.Length {
	return vg.Length(rows)*vg.Points(22) + 1.5*vg.Inch
}

// top returns up to MaxFeatures indices ordered by descending score.
func top(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if len(idx) > MaxFeatures {
		idx = idx[:MaxFeatures]
	}
	return idx
}

func checkNamed(op string, names []string, n int) error {
	if len(names) == 0 || n == 0 {
		return errors.ErrEmptyData
	}
	if len(names) != n {
		return errors.NewDimensionError(op, len(names), n, 0)
	}
	return nil
}

// bars draws a horizontal bar chart with the largest value at the top.
func bars(title, xlabel string, features []string, scores []float64, c color.Color) ([]byte, error) {
	idx := top(scores)
	n := len(idx)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for k, i := range idx {
		// 下から上へ: 最大値を最上段に
		values[n-1-k] = scores[i]
		names[n-1-k] = features[i]
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	bc, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return nil, errors.Wrap(err, "bar chart")
	}
	bc.Horizontal = true
	bc.Color = c
	bc.LineStyle.Width = 0
	p.Add(plotter.NewGrid(), bc)
	p.NominalY(names...)
	p.X.Min = math.Min(0, p.X.Min)
	return render(p, 6*vg.Inch, height(n))
}

// ImportanceBar draws model feature importances.
func ImportanceBar(features []string, scores []float64) ([]byte, error) {
	if err := checkNamed("chart.ImportanceBar", features, len(scores)); err != nil {
		return nil, err
	}
	return bars("Feature importance", "importance", features, scores, barColor)
}

// SHAPBar draws mean |SHAP| per feature.
func SHAPBar(features []string, meanAbs []float64) ([]byte, error) {
	if err := checkNamed("chart.SHAPBar", features, len(meanAbs)); err != nil {
		return nil, err
	}
	return bars("SHAP feature importance", "mean(|SHAP value|)", features, meanAbs, shapColor)
}

// SHAPSummary draws one row of points per feature, each point a row's SHAP
// value, coloured from blue (low feature value) to red (high). values and
// data are (rows, features).
func SHAPSummary(features []string, values, data mat.Matrix) ([]byte, error) {
	if values == nil || data == nil {
		return nil, errors.ErrEmptyData
	}
	rows, d := values.Dims()
	if err := checkNamed("chart.SHAPSummary", features, d); err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, errors.ErrEmptyData
	}
	if dr, dc := data.Dims(); dr != rows || dc != d {
		return nil, errors.NewDimensionError("chart.SHAPSummary", rows, dr, 0)
	}

	meanAbs := make([]float64, d)
	for j := 0; j < d; j++ {
		for i := 0; i < rows; i++ {
			meanAbs[j] += math.Abs(values.At(i, j))
		}
	}
	idx := top(meanAbs)
	n := len(idx)

	p := plot.New()
	p.Title.Text = "SHAP summary"
	p.X.Label.Text = "SHAP value (impact on predicted-class probability)"
	p.Add(plotter.NewGrid())

	jitter := rand.New(rand.NewSource(1))
	names := make([]string, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for k, j := range idx {
		y := float64(n - 1 - k)
		names[n-1-k] = features[j]

		pts := make(plotter.XYs, rows)
		col := mat.Col(nil, j, data)
		cmin, cmax := math.Inf(1), math.Inf(-1)
		for _, v := range col {
			if !math.IsNaN(v) {
				cmin, cmax = math.Min(cmin, v), math.Max(cmax, v)
			}
		}
		for i := 0; i < rows; i++ {
			pts[i].X = values.At(i, j)
			pts[i].Y = y + (jitter.Float64()-0.5)*0.5
			lo, hi = math.Min(lo, pts[i].X), math.Max(hi, pts[i].X)
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, errors.Wrap(err, "summary scatter")
		}
		s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			return draw.GlyphStyle{
				Color:  valueColor(col[i], cmin, cmax),
				Radius: vg.Points(2.2),
				Shape:  draw.CircleGlyph{},
			}
		}
		p.Add(s)
	}

	zero, err := plotter.NewLine(plotter.XYs{{X: 0, Y: -0.5}, {X: 0, Y: float64(n) - 0.5}})
	if err != nil {
		return nil, errors.Wrap(err, "zero line")
	}
	zero.Color = grayColor
	p.Add(zero)
	p.NominalY(names...)
	if lo == hi {
		p.X.Min, p.X.Max = lo-1, hi+1
	}
	return render(p, 7*vg.Inch, height(n))
}

// valueColor interpolates from blue to red; NaN and constant columns are gray.
func valueColor(v, lo, hi float64) color.Color {
	if math.IsNaN(v) || !(hi > lo) {
		return grayColor
	}
	t := (v - lo) / (hi - lo)
	mix := func(a, b uint8) uint8 { return uint8(float64(a) + t*(float64(b)-float64(a))) }
	return color.RGBA{
		R: mix(lowColor.R, shapColor.R),
		G: mix(lowColor.G, shapColor.G),
		B: mix(lowColor.B, shapColor.B),
		A: 255,
	}
}

// grid adapts a square matrix to plotter.GridXYZ with row 0 drawn at the top.
type grid struct {
	m mat.Matrix
	n int
}

func (g grid) Dims() (c, r int)   { return g.n, g.n }
func (g grid) Z(c, r int) float64 { return g.m.At(g.n-1-r, c) }
func (g grid) X(c int) float64    { return float64(c) }
func (g grid) Y(r int) float64    { return float64(r) }

// heatmap draws m with annotations formatted by format.
func heatmap(title string, labels []string, m mat.Matrix, pal palette.Palette, lo, hi float64, format string) ([]byte, error) {
	n := len(labels)
	g := grid{m: m, n: n}

	p := plot.New()
	p.Title.Text = title
	hm := plotter.NewHeatMap(g, pal)
	hm.Min, hm.Max = lo, hi
	p.Add(hm)

	var xys plotter.XYs
	var text []string
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			xys = append(xys, plotter.XY{X: g.X(c), Y: g.Y(r)})
			text = append(text, fmt.Sprintf(format, g.Z(c, r)))
		}
	}
	ann, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
	if err != nil {
		return nil, errors.Wrap(err, "heatmap labels")
	}
	p.Add(ann)

	rev := make([]string, n)
	for i, l := range labels {
		rev[n-1-i] = l
	}
	p.NominalX(labels...)
	p.NominalY(rev...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight

	side := vg.Length(n)*vg.Points(40) + 2*vg.Inch
	return render(p, side+vg.Inch, side)
}

// CorrelationHeatmap draws a correlation matrix on a fixed [-1, 1] diverging scale.
func CorrelationHeatmap(columns []string, m mat.Symmetric) ([]byte, error) {
	if m == nil {
		return nil, errors.ErrEmptyData
	}
	if err := checkNamed("chart.CorrelationHeatmap", columns, m.SymmetricDim()); err != nil {
		return nil, err
	}
	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(-1)
	cmap.SetMax(1)
	return heatmap("Correlation", columns, m, cmap.Palette(255), -1, 1, "%.2f")
}

// ConfusionHeatmap draws a confusion matrix (rows true, columns predicted)
// with the count in each cell.
func ConfusionHeatmap(labels []string, cm mat.Matrix) ([]byte, error) {
	if cm == nil {
		return nil, errors.ErrEmptyData
	}
	r, c := cm.Dims()
	if r != c {
		return nil, errors.NewDimensionError("chart.ConfusionHeatmap", r, c, 1)
	}
	if err := checkNamed("chart.ConfusionHeatmap", labels, r); err != nil {
		return nil, err
	}
	peak := mat.Max(cm)
	if peak <= 0 {
		peak = 1
	}
	return heatmap("Confusion matrix (rows: true, columns: predicted)", labels, cm, blues(64), 0, peak, "%.0f")
}

type ramp []color.Color

func (r ramp) Colors() []color.Color { return r }

// blues is a white to dark blue ramp.
func blues(n int) palette.Palette {
	out := make(ramp, n)
	for i := range out {
		t := float64(i) / float64(n-1)
		out[i] = color.RGBA{
			R: uint8(247 - t*(247-8)),
			G: uint8(251 - t*(251-48)),
			B: uint8(255 - t*(255-107)),
			A: 255,
		}
	}
	return out
}
