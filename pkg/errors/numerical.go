package errors

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// NumericalInstabilityError reports NaN or Inf appearing during an iterative
// computation (gradient descent, probability normalisation).
type NumericalInstabilityError struct {
	Operation string
	Iteration int
	Values    []float64
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("insightml: numerical instability in %s at iteration %d (sample: %v)",
		e.Operation, e.Iteration, e.Values)
}

// NewNumericalInstabilityError keeps at most the first five offending values.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	sample := values
	if len(sample) > 5 {
		sample = sample[:5]
	}
	cp := make([]float64, len(sample))
	copy(cp, sample)
	return errors.WithStack(&NumericalInstabilityError{Operation: operation, Iteration: iteration, Values: cp})
}

// CheckNumericalStability checks if values contain NaN or Inf
// and returns an error if numerical instability is detected.
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNumericalInstabilityError(operation, values, iteration)
		}
	}
	return nil
}

// SafeDivide returns 0 when the denominator is zero or close to it.
func SafeDivide(numerator, denominator float64) float64 {
	if math.Abs(denominator) < 1e-10 {
		return 0
	}
	return numerator / denominator
}

// ClipValue clips a value to the range [min, max].
func ClipValue(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// StabilizeLog returns log(max(value, 1e-15)).
func StabilizeLog(value float64) float64 {
	const epsilon = 1e-15
	if value < epsilon {
		return math.Log(epsilon)
	}
	return math.Log(value)
}

// StabilizeExp clips the exponent so the result never overflows to Inf.
func StabilizeExp(value float64) float64 {
	const maxExp = 700.0
	if value > maxExp {
		return math.Exp(maxExp)
	}
	if value < -maxExp {
		return 0
	}
	return math.Exp(value)
}
