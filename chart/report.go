package chart

import (
	"fmt"

	"github.com/YuminosukeSato/insightml/inference"
	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// Chart kinds drawn from an explanation report.
const (
	KindImportance  = "importance"
	KindSHAPBar     = "shap_bar"
	KindSHAPSummary = "shap_summary"
	KindCorrelation = "correlation"
	KindConfusion   = "confusion"
)

// Kinds lists every chart kind in display order.
func Kinds() []string {
	return []string{KindImportance, KindSHAPSummary, KindSHAPBar, KindCorrelation, KindConfusion}
}

var titles = map[string]string{
	KindImportance:  "Feature importance",
	KindSHAPBar:     "SHAP feature importance",
	KindSHAPSummary: "SHAP summary",
	KindCorrelation: "Correlation heatmap",
	KindConfusion:   "Confusion matrix",
}

// Title returns the display title of kind, or "" for an unknown kind.
func Title(kind string) string { return titles[kind] }

// UnavailableError is returned by Render when the report section a chart
// needs could not be computed.
type UnavailableError struct {
	Section inference.Section
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s not available: %s", e.Section.Name, e.Section.Reason)
}

// Render draws one chart of r.
func Render(r *inference.Report, kind string) ([]byte, error) {
	if r == nil {
		return nil, errors.NewValueError("chart.Render", "nil report")
	}
	switch kind {
	case KindImportance:
		if !r.Importance.Available {
			return nil, &UnavailableError{r.Importance.Section}
		}
		return ImportanceBar(r.Importance.Features, r.Importance.Scores)
	case KindSHAPBar, KindSHAPSummary:
		if !r.SHAP.Available {
			return nil, &UnavailableError{r.SHAP.Section}
		}
		sv := r.SHAP.Values
		if kind == KindSHAPBar {
			return SHAPBar(sv.Features, sv.MeanAbs)
		}
		return SHAPSummary(sv.Features, sv.Values, sv.Data)
	case KindCorrelation:
		if !r.Correlation.Available {
			return nil, &UnavailableError{r.Correlation.Section}
		}
		return CorrelationHeatmap(r.Correlation.Columns, r.Correlation.Matrix)
	case KindConfusion:
		if !r.Performance.Available {
			return nil, &UnavailableError{r.Performance.Section}
		}
		return ConfusionHeatmap(r.Performance.Labels, r.Performance.Confusion)
	}
	return nil, errors.NewResourceNotFoundError("chart", kind)
}
