package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// NumericImputer replaces NaN cells with the per-column training mean.
type NumericImputer struct {
	Means []float64
}

func (imp *NumericImputer) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("imputer: no rows")
	}
	width := len(X[0])
	imp.Means = make([]float64, width)
	values := make([]float64, 0, len(X))
	for j := 0; j < width; j++ {
		values = values[:0]
		for _, row := range X {
			if !math.IsNaN(row[j]) {
				values = append(values, row[j])
			}
		}
		// a column with no observed values imputes zero
		if len(values) > 0 {
			imp.Means[j] = stat.Mean(values, nil)
		}
	}
	return nil
}

func (imp *NumericImputer) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		if math.IsNaN(v) {
			v = imp.Means[j]
		}
		out[j] = v
	}
	return out
}

// MinMaxScaler rescales each column to [0, 1] using the training min and max.
// Inputs outside the training range are not clipped.
type MinMaxScaler struct {
	Mins []float64
	Maxs []float64
}

func (s *MinMaxScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("scaler: no rows")
	}
	width := len(X[0])
	s.Mins = append([]float64(nil), X[0]...)
	s.Maxs = append([]float64(nil), X[0]...)
	for _, row := range X[1:] {
		for j := 0; j < width; j++ {
			s.Mins[j] = math.Min(s.Mins[j], row[j])
			s.Maxs[j] = math.Max(s.Maxs[j], row[j])
		}
	}
	return nil
}

func (s *MinMaxScaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = scaleValue(v, s.Mins[j], s.Maxs[j])
	}
	return out
}

// scaleValue treats a zero range as one, so a constant training column maps
// to 0 and later values keep their offset from the training constant.
func scaleValue(value, min, max float64) float64 {
	span := max - min
	if span == 0 {
		span = 1
	}
	return (value - min) / span
}

// CategoricalImputer replaces missing cells with the per-column training
// mode. Ties go to the lexicographically smallest value.
type CategoricalImputer struct {
	Modes []string
}

func (imp *CategoricalImputer) Fit(C [][]Category) error {
	if len(C) == 0 {
		return errors.New("imputer: no rows")
	}
	width := len(C[0])
	imp.Modes = make([]string, width)
	for j := 0; j < width; j++ {
		counts := make(map[string]int)
		for _, row := range C {
			if !row[j].Missing {
				counts[row[j].Value]++
			}
		}
		imp.Modes[j] = mode(counts)
	}
	return nil
}

func (imp *CategoricalImputer) Transform(c []Category) []string {
	out := make([]string, len(c))
	for j, v := range c {
		if v.Missing {
			out[j] = imp.Modes[j]
			continue
		}
		out[j] = v.Value
	}
	return out
}

func mode(counts map[string]int) string {
	best := ""
	bestCount := 0
	for value, count := range counts {
		if count > bestCount || (count == bestCount && value < best) {
			best = value
			bestCount = count
		}
	}
	return best
}

// OneHotEncoder expands each categorical column into indicators over its
// sorted training vocabulary. Unknown values produce an all-zero block.
type OneHotEncoder struct {
	Categories [][]string
}

func (e *OneHotEncoder) Fit(S [][]string) error {
	if len(S) == 0 {
		return errors.New("encoder: no rows")
	}
	width := len(S[0])
	e.Categories = make([][]string, width)
	for j := 0; j < width; j++ {
		seen := make(map[string]struct{})
		for _, row := range S {
			seen[row[j]] = struct{}{}
		}
		vocab := make([]string, 0, len(seen))
		for value := range seen {
			vocab = append(vocab, value)
		}
		sort.Strings(vocab)
		e.Categories[j] = vocab
	}
	return nil
}

// Width is the total number of indicator columns.
func (e *OneHotEncoder) Width() int {
	n := 0
	for _, vocab := range e.Categories {
		n += len(vocab)
	}
	return n
}

// Encode appends the indicator blocks for s to dst.
func (e *OneHotEncoder) Encode(dst []float64, s []string) []float64 {
	for j, vocab := range e.Categories {
		block := make([]float64, len(vocab))
		if idx := sort.SearchStrings(vocab, s[j]); idx < len(vocab) && vocab[idx] == s[j] {
			block[idx] = 1
		}
		dst = append(dst, block...)
	}
	return dst
}

// Known reports whether value is in the vocabulary of column j.
func (e *OneHotEncoder) Known(j int, value string) bool {
	vocab := e.Categories[j]
	idx := sort.SearchStrings(vocab, value)
	return idx < len(vocab) && vocab[idx] == value
}

// ColumnTransformer runs the numeric branch (impute mean, min-max scale) and
// the categorical branch (impute mode, one-hot) and concatenates them.
// It is read-only once fitted.
type ColumnTransformer struct {
	NumericImputer     NumericImputer
	Scaler             MinMaxScaler
	CategoricalImputer CategoricalImputer
	Encoder            OneHotEncoder
}

func (t *ColumnTransformer) Fit(rows []Row) error {
	if len(rows) == 0 {
		return errors.New("transformer: no rows")
	}
	numeric := make([][]float64, len(rows))
	categorical := make([][]Category, len(rows))
	for i, row := range rows {
		if err := checkRow(row); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		numeric[i] = row.Numeric
		categorical[i] = row.Categorical
	}

	if err := t.NumericImputer.Fit(numeric); err != nil {
		return err
	}
	imputed := make([][]float64, len(numeric))
	for i, x := range numeric {
		imputed[i] = t.NumericImputer.Transform(x)
	}
	if err := t.Scaler.Fit(imputed); err != nil {
		return err
	}

	if err := t.CategoricalImputer.Fit(categorical); err != nil {
		return err
	}
	filled := make([][]string, len(categorical))
	for i, c := range categorical {
		filled[i] = t.CategoricalImputer.Transform(c)
	}
	return t.Encoder.Fit(filled)
}

// Width is the length of every transformed vector.
func (t *ColumnTransformer) Width() int {
	return len(t.Scaler.Mins) + t.Encoder.Width()
}

func (t *ColumnTransformer) Transform(row Row) ([]float64, error) {
	if err := checkRow(row); err != nil {
		return nil, err
	}
	if len(t.Scaler.Mins) != len(row.Numeric) || len(t.Encoder.Categories) != len(row.Categorical) {
		return nil, errors.New("transformer not fitted for this schema")
	}
	out := make([]float64, 0, t.Width())
	out = append(out, t.Scaler.Transform(t.NumericImputer.Transform(row.Numeric))...)
	return t.Encoder.Encode(out, t.CategoricalImputer.Transform(row.Categorical)), nil
}

func checkRow(row Row) error {
	if len(row.Numeric) != len(numericNames) {
		return fmt.Errorf("expected %d numeric values, got %d", len(numericNames), len(row.Numeric))
	}
	if len(row.Categorical) != len(categoricalNames) {
		return fmt.Errorf("expected %d categorical values, got %d", len(categoricalNames), len(row.Categorical))
	}
	return nil
}
