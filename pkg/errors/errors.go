// Package errors はInsightML全体のエラーハンドリングと警告システムを提供します。
//
// Errors are split into two families. Hard errors (MissingFeatureError,
// CorruptBundleError, ...) are returned to the caller and carry a stack trace
// from cockroachdb/errors. Warnings (DataConversionWarning,
// ExplanationUnavailableWarning, ...) describe a degraded but recovered
// computation and are reported through Warn.
package errors

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("InsightML-Warning: %v\n", w)
	}
	// set by pkg/log to avoid an import cycle
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the fallback handler used when no structured
// logger has been installed.
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs the structured warning sink. Passing nil restores
// the fallback handler.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn reports a recovered problem.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ConvergenceWarning は最適化アルゴリズムが収束しなかった場合に発生する警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// DataConversionWarning reports values of a column that could not be coerced
// to the column's kind and were replaced by the missing marker (or by a
// fallback value).
type DataConversionWarning struct {
	Column   string
	FromType string
	ToType   string
	Count    int
	Reason   string
}

func (w *DataConversionWarning) Error() string {
	return fmt.Sprintf("column %q: %d value(s) converted from %s to %s. Reason: %s",
		w.Column, w.Count, w.FromType, w.ToType, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DataConversionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("column", w.Column).
		Str("from_type", w.FromType).
		Str("to_type", w.ToType).
		Int("count", w.Count).
		Str("reason", w.Reason).
		Str("type", "DataConversionWarning")
}

// NewDataConversionWarning は新しいDataConversionWarningを作成します。
func NewDataConversionWarning(column, from, to string, count int, reason string) *DataConversionWarning {
	return &DataConversionWarning{Column: column, FromType: from, ToType: to, Count: count, Reason: reason}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、適合率(precision)を計算する際に、陽性クラスの予測が一つもなかった場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ExplanationUnavailableWarning marks one section of an explanation report
// (importance, shap, correlation, performance) that could not be computed.
// The rest of the report is unaffected.
type ExplanationUnavailableWarning struct {
	Section string
	Reason  string
}

func (w *ExplanationUnavailableWarning) Error() string {
	return fmt.Sprintf("%s unavailable: %s", w.Section, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ExplanationUnavailableWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("section", w.Section).
		Str("reason", w.Reason).
		Str("type", "ExplanationUnavailableWarning")
}

// NewExplanationUnavailableWarning creates a warning for the given section.
func NewExplanationUnavailableWarning(section string, cause error) *ExplanationUnavailableWarning {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return &ExplanationUnavailableWarning{Section: section, Reason: reason}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("insightml: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("insightml: %s: dimension mismatch on axis %d (%s). Expected %d, got %d",
		e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("insightml: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("insightml: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("insightml: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("insightml: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// MissingFeatureError is returned when data handed to a trained model lacks
// one or more of the model's feature columns.
type MissingFeatureError struct {
	Op      string
	Columns []string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("insightml: %s: missing feature column(s): %s", e.Op, strings.Join(e.Columns, ", "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MissingFeatureError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Strs("columns", e.Columns).
		Str("type", "MissingFeatureError")
}

// NewMissingFeatureError creates a MissingFeatureError naming every absent column.
func NewMissingFeatureError(op string, columns []string) error {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return errors.WithStack(&MissingFeatureError{Op: op, Columns: cols})
}

// ColumnNotFoundError is returned when a column that must exist for an
// operation (a declared categorical column, the target) is absent.
type ColumnNotFoundError struct {
	Column string
	Role   string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("insightml: %s column %q not found", e.Role, e.Column)
}

// NewColumnNotFoundError creates a ColumnNotFoundError.
func NewColumnNotFoundError(column, role string) error {
	return errors.WithStack(&ColumnNotFoundError{Column: column, Role: role})
}

// ResourceNotFoundError reports a missing dataset, bundle or directory.
// It unwraps to ErrNotFound so callers can test with Is.
type ResourceNotFoundError struct {
	Kind string
	Name string
}

func (e *ResourceNotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("insightml: no %s found", e.Kind)
	}
	return fmt.Sprintf("insightml: %s %q not found", e.Kind, e.Name)
}

func (e *ResourceNotFoundError) Unwrap() error {
	return ErrNotFound
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ResourceNotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("kind", e.Kind).
		Str("name", e.Name).
		Str("type", "ResourceNotFoundError")
}

// NewResourceNotFoundError creates a ResourceNotFoundError. name may be empty
// when a whole directory is empty.
func NewResourceNotFoundError(kind, name string) error {
	return errors.WithStack(&ResourceNotFoundError{Kind: kind, Name: name})
}

// CorruptBundleError is returned when a persisted bundle cannot be decoded or
// decodes into an invalid bundle.
type CorruptBundleError struct {
	Path string
	Err  error
}

func (e *CorruptBundleError) Error() string {
	return fmt.Sprintf("insightml: corrupt bundle %s: %v", e.Path, e.Err)
}

func (e *CorruptBundleError) Unwrap() error {
	return e.Err
}

// NewCorruptBundleError creates a CorruptBundleError.
func NewCorruptBundleError(path string, err error) error {
	return errors.WithStack(&CorruptBundleError{Path: path, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNotFound is the sentinel every ResourceNotFoundError unwraps to.
	ErrNotFound = New("not found")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")

	// ErrNoDatasets is returned when the dataset directory holds no loadable file.
	ErrNoDatasets error = &ResourceNotFoundError{Kind: "datasets"}

	// ErrNoModels is returned when the model directory holds no bundle.
	ErrNoModels error = &ResourceNotFoundError{Kind: "models"}

	// ErrBundleNotFound marks every error produced by NewBundleNotFoundError.
	ErrBundleNotFound error = &ResourceNotFoundError{Kind: "bundle"}
)

// NewBundleNotFoundError reports a named bundle that does not exist. The result
// satisfies Is(err, ErrBundleNotFound) and Is(err, ErrNotFound).
func NewBundleNotFoundError(name string) error {
	return errors.Mark(NewResourceNotFoundError("bundle", name), ErrBundleNotFound)
}
