// Package metrics は分類モデルの評価指標を提供する。
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// checkPair は2つのベクトルが空でなく同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

func checkBinaryLabels(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, fmt.Sprintf("labels must be 0 or 1, got %v", v))
		}
	}
	return nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AUC は二値分類の ROC 曲線下面積を計算する。
// yTrue は 0/1、yScore は陽性クラスのスコア。同順位は平均順位で扱う。
// 片方のクラスしか存在しない場合は未定義のため 0.5 を返し、警告を出す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b]) })

	// Mann-Whitney U: 陽性サンプルの順位和から計算
	var rankSum float64
	nPos := 0
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(idx[j+1]) == yScore.AtVec(idx[i]) {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				rankSum += avgRank
				nPos++
			}
		}
		i = j + 1
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	u := rankSum - float64(nPos*(nPos+1))/2
	return u / float64(nPos*nNeg), nil
}

// BinaryLogLoss は二値クロスエントロピーを計算する。yProb は陽性クラスの確率。
// 確率0の対数は log(1e-15) で打ち切るため、結果は常に有限。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), 0, 1)
		if yTrue.AtVec(i) == 1 {
			sum -= errors.StabilizeLog(p)
		} else {
			sum -= errors.StabilizeLog(1 - p)
		}
	}
	return sum / float64(n), nil
}

// Labels は yTrue と yPred に現れるラベルを昇順で返す
func Labels(yTrue, yPred []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, ys := range [][]int{yTrue, yPred} {
		for _, v := range ys {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

// ConfusionMatrix は混同行列を返す。行が正解、列が予測。
// labels が nil の場合は Labels(yTrue, yPred) を使う。
func ConfusionMatrix(yTrue, yPred []int, labels []int) (*mat.Dense, error) {
	if len(yTrue) == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "empty labels")
	}
	if len(yPred) != len(yTrue) {
		return nil, errors.NewDimensionError("ConfusionMatrix", len(yTrue), len(yPred), 0)
	}
	if labels == nil {
		labels = Labels(yTrue, yPred)
	}
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range yTrue {
		r, ok1 := pos[yTrue[i]]
		c, ok2 := pos[yPred[i]]
		if ok1 && ok2 {
			cm.Set(r, c, cm.At(r, c)+1)
		}
	}
	return cm, nil
}

// ClassMetrics はクラス毎(または平均)の適合率・再現率・F1
type ClassMetrics struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// ClassificationReport is scikit-learn's classification_report as data.
type ClassificationReport struct {
	Classes     []ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
	Support     int
	Confusion   *mat.Dense
	Labels      []int
}

// NewClassificationReport computes per-class precision, recall and F1.
// names maps each label position to a display name; nil uses the label values.
// Ill-defined precision or recall is reported as 0 with an UndefinedMetricWarning.
func NewClassificationReport(yTrue, yPred []int, labels []int, names []string) (*ClassificationReport, error) {
	if labels == nil {
		labels = Labels(yTrue, yPred)
	}
	if names != nil && len(names) != len(labels) {
		return nil, errors.NewDimensionError("NewClassificationReport", len(labels), len(names), 0)
	}
	cm, err := ConfusionMatrix(yTrue, yPred, labels)
	if err != nil {
		return nil, err
	}

	r := &ClassificationReport{Support: len(yTrue), Confusion: cm, Labels: append([]int(nil), labels...)}
	k := len(labels)
	correct := 0.0
	var undefPrecision, undefRecall []string
	for i := 0; i < k; i++ {
		tp := cm.At(i, i)
		correct += tp
		var predicted, actual float64
		for j := 0; j < k; j++ {
			predicted += cm.At(j, i)
			actual += cm.At(i, j)
		}
		name := strconv.Itoa(labels[i])
		if names != nil {
			name = names[i]
		}
		m := ClassMetrics{
			Label:     name,
			Support:   int(actual),
			Precision: errors.SafeDivide(tp, predicted),
			Recall:    errors.SafeDivide(tp, actual),
		}
		if predicted == 0 {
			undefPrecision = append(undefPrecision, name)
		}
		if actual == 0 {
			undefRecall = append(undefRecall, name)
		}
		m.F1 = errors.SafeDivide(2*m.Precision*m.Recall, m.Precision+m.Recall)
		r.Classes = append(r.Classes, m)
	}
	if len(undefPrecision) > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision",
			"no predicted samples for label(s) "+strings.Join(undefPrecision, ", "), 0))
	}
	if len(undefRecall) > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall",
			"no true samples for label(s) "+strings.Join(undefRecall, ", "), 0))
	}

	r.Accuracy = correct / float64(len(yTrue))
	r.MacroAvg = ClassMetrics{Label: "macro avg", Support: r.Support}
	r.WeightedAvg = ClassMetrics{Label: "weighted avg", Support: r.Support}
	for _, m := range r.Classes {
		r.MacroAvg.Precision += m.Precision / float64(k)
		r.MacroAvg.Recall += m.Recall / float64(k)
		r.MacroAvg.F1 += m.F1 / float64(k)
		w := float64(m.Support) / float64(r.Support)
		r.WeightedAvg.Precision += m.Precision * w
		r.WeightedAvg.Recall += m.Recall * w
		r.WeightedAvg.F1 += m.F1 * w
	}
	return r, nil
}

// String renders the report in scikit-learn's text layout with two digits.
func (r *ClassificationReport) String() string {
	width := len("weighted avg")
	for _, m := range r.Classes {
		if len(m.Label) > width {
			width = len(m.Label)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	row := func(m ClassMetrics) {
		fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	for _, m := range r.Classes {
		row(m)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Support)
	row(r.MacroAvg)
	row(r.WeightedAvg)
	return b.String()
}
