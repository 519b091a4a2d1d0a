package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is one raw observation keyed by field name.
type Record map[string]any

// Category is a categorical cell. Missing cells are replaced by the column
// mode during transformation; only training data produces them.
type Category struct {
	Value   string
	Missing bool
}

// Row is a record coerced into schema order. NaN marks a missing numeric
// cell.
type Row struct {
	Numeric     []float64
	Categorical []Category
}

var errNotFinite = errors.New("value is not finite")

// Coerce converts a request record into a Row.
//
// An absent or empty numeric field becomes 0, not a missing value: the
// training-time mean imputation never sees request data. Categorical values
// pass through unchanged; absent ones become "".
func Coerce(rec Record) (Row, error) {
	row := Row{
		Numeric:     make([]float64, 0, len(numericNames)),
		Categorical: make([]Category, 0, len(categoricalNames)),
	}
	for _, f := range fields {
		raw, ok := rec[f.Name]
		if !ok || raw == nil {
			raw = f.Default
		}
		switch f.Kind {
		case Numeric:
			v, err := toFloat(raw, f.Default)
			if err != nil {
				return Row{}, &ConversionError{Field: f.Name, Value: fmt.Sprint(raw), Err: err}
			}
			row.Numeric = append(row.Numeric, v)
		case Categorical:
			s, err := toCategory(raw)
			if err != nil {
				return Row{}, &ConversionError{Field: f.Name, Value: fmt.Sprint(raw), Err: err}
			}
			row.Categorical = append(row.Categorical, Category{Value: s})
		}
	}
	return row, nil
}

func toFloat(raw any, def string) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			s = def
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.New("not a number")
		}
		v = f
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, errors.New("not a number")
		}
		v = f
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int32:
		v = float64(x)
	case int64:
		v = float64(x)
	case uint:
		v = float64(x)
	case uint32:
		v = float64(x)
	case uint64:
		v = float64(x)
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

func toCategory(raw any) (string, error) {
	switch x := raw.(type) {
	case string:
		return x, nil
	case json.Number:
		// 2.0 and 2 name the same category
		if f, err := x.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported type %T", raw)
	}
}
