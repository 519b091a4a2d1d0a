package ml

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Weighting selects how neighbour targets are averaged.
type Weighting string

const (
	UniformWeights  Weighting = "uniform"
	DistanceWeights Weighting = "distance"
)

const DefaultNeighbors = 5

func ParseWeighting(s string) (Weighting, error) {
	switch Weighting(s) {
	case "", UniformWeights:
		return UniformWeights, nil
	case DistanceWeights:
		return DistanceWeights, nil
	default:
		return "", fmt.Errorf("unknown weighting %q", s)
	}
}

// KNNRegressor memorises the training vectors and predicts the average
// target of the K closest ones by euclidean distance.
type KNNRegressor struct {
	K       int
	Weights Weighting
	X       [][]float64
	Y       []float64
}

func NewKNNRegressor(k int, weights Weighting) *KNNRegressor {
	if k <= 0 {
		k = DefaultNeighbors
	}
	if weights == "" {
		weights = UniformWeights
	}
	return &KNNRegressor{K: k, Weights: weights}
}

func (m *KNNRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(y) == 0 {
		return errors.New("features or targets empty")
	}
	if len(X) != len(y) {
		return errors.New("features and targets size mismatch")
	}
	if len(X) < m.K {
		return fmt.Errorf("need at least %d training samples, got %d", m.K, len(X))
	}
	width := len(X[0])
	stored := make([][]float64, len(X))
	for i, x := range X {
		if len(x) != width {
			return fmt.Errorf("sample %d has %d features, want %d", i, len(x), width)
		}
		stored[i] = append([]float64(nil), x...)
	}
	m.X = stored
	m.Y = append([]float64(nil), y...)
	return nil
}

// Dim is the feature width the regressor was fitted on.
func (m *KNNRegressor) Dim() int {
	if len(m.X) == 0 {
		return 0
	}
	return len(m.X[0])
}

type neighbor struct {
	dist float64
	idx  int
}

func (m *KNNRegressor) Predict(x []float64) (float64, error) {
	if len(m.X) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(x) != m.Dim() {
		return 0, fmt.Errorf("expected %d features, got %d", m.Dim(), len(x))
	}

	nearest := make([]neighbor, len(m.X))
	for i, stored := range m.X {
		nearest[i] = neighbor{dist: floats.Distance(x, stored, 2), idx: i}
	}
	// ties keep training order
	sort.SliceStable(nearest, func(a, b int) bool {
		return nearest[a].dist < nearest[b].dist
	})
	k := m.K
	if k > len(nearest) {
		k = len(nearest)
	}
	nearest = nearest[:k]

	if m.Weights == DistanceWeights {
		return m.weightedMean(nearest), nil
	}
	var sum float64
	for _, n := range nearest {
		sum += m.Y[n.idx]
	}
	return sum / float64(k), nil
}

// weightedMean uses inverse distances; exact matches, if any, take the plain
// mean of their targets.
func (m *KNNRegressor) weightedMean(nearest []neighbor) float64 {
	var exactSum float64
	var exact int
	for _, n := range nearest {
		if n.dist == 0 {
			exactSum += m.Y[n.idx]
			exact++
		}
	}
	if exact > 0 {
		return exactSum / float64(exact)
	}
	var num, den float64
	for _, n := range nearest {
		w := 1 / n.dist
		num += w * m.Y[n.idx]
		den += w
	}
	return num / den
}
