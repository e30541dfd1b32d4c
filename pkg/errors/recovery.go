package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PanicError is a panic turned into an error at an API boundary.
type PanicError struct {
	Operation  string
	PanicValue interface{}
	StackTrace string
}

// NewPanicError captures the current goroutine stack.
func NewPanicError(op string, value interface{}) *PanicError {
	return &PanicError{Operation: op, PanicValue: value, StackTrace: string(debug.Stack())}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// String は Error にスタックトレースを付けたものを返します。
func (e *PanicError) String() string {
	return e.Error() + "\nStack trace:\n" + e.StackTrace
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *PanicError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("error_type", "PanicError").
		Str("operation", e.Operation).
		Str("panic", fmt.Sprint(e.PanicValue))
}

// Recover is deferred with the address of a named error result. A panic in
// the surrounding function becomes a *PanicError; an error already assigned
// to *errp stays in the chain.
func Recover(errp *error, op string) {
	r := recover()
	if r == nil {
		return
	}
	pe := NewPanicError(op, r)
	if errp == nil {
		return
	}
	if *errp != nil {
		*errp = errors.Wrapf(*errp, "%s", pe.Error())
		return
	}
	*errp = pe
}

// SafeExecute runs fn and reports a panic inside it as a *PanicError.
func SafeExecute(op string, fn func() error) (err error) {
	defer Recover(&err, op)
	return fn()
}
