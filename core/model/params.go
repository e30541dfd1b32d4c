package model

import (
	"math"
	"strconv"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// Hyperparameters arrive as Go values from code, as float64 from JSON and YAML,
// and as strings from CLI flags. These helpers accept all three.

// ParamInt converts a parameter value to int.
func ParamInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.NewValidationError(name, "must be an integer", v)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, errors.NewValidationError(name, "must be an integer", v)
		}
		return n, nil
	case nil:
		return -1, nil
	}
	return 0, errors.NewValidationError(name, "must be an integer", v)
}

// ParamFloat converts a parameter value to float64.
func ParamFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, errors.NewValidationError(name, "must be a number", v)
		}
		return f, nil
	}
	return 0, errors.NewValidationError(name, "must be a number", v)
}

// ParamString converts a parameter value to string.
func ParamString(name string, v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.NewValidationError(name, "must be a string", v)
}

// ParamBool converts a parameter value to bool.
func ParamBool(name string, v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, errors.NewValidationError(name, "must be a boolean", v)
		}
		return b, nil
	}
	return false, errors.NewValidationError(name, "must be a boolean", v)
}
