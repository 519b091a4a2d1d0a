package ml

import (
	"errors"
	"fmt"
	"time"
)

type TrainConfig struct {
	TestRatio float64
	Seed      int64
	Neighbors int
	Weights   Weighting
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		TestRatio: DefaultTestRatio,
		Seed:      DefaultSeed,
		Neighbors: DefaultNeighbors,
		Weights:   UniformWeights,
	}
}

// Pipeline is the fitted artifact: frozen transform statistics plus the
// regressor's stored training vectors. It is never mutated after Train.
type Pipeline struct {
	Transformer *ColumnTransformer
	Regressor   *KNNRegressor
	TrainedAt   time.Time
	TrainRows   int
}

// Evaluation summarises a training run on both partitions.
type Evaluation struct {
	TrainRows int
	TestRows  int
	TrainR2   float64
	TestR2    float64
	TestMAE   float64
	TestRMSE  float64
	Dropped   []string
}

// Train validates the dataset, splits it, fits the transforms on the training
// partition only and fits the regressor on the transformed vectors.
func Train(ds *Dataset, cfg TrainConfig) (*Pipeline, *Evaluation, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return nil, nil, errors.New("dataset is empty")
	}
	index, extra, err := ValidateColumns(ds.Columns)
	if err != nil {
		return nil, nil, err
	}
	rows, targets, err := parseRows(ds, index)
	if err != nil {
		return nil, nil, err
	}

	trainIdx, testIdx, err := Split(len(rows), cfg.TestRatio, cfg.Seed)
	if err != nil {
		return nil, nil, err
	}
	trainRows, trainY := pick(rows, targets, trainIdx)
	testRows, testY := pick(rows, targets, testIdx)

	transformer := &ColumnTransformer{}
	if err := transformer.Fit(trainRows); err != nil {
		return nil, nil, fmt.Errorf("fit transformer: %w", err)
	}
	trainX, err := transformAll(transformer, trainRows)
	if err != nil {
		return nil, nil, err
	}

	regressor := NewKNNRegressor(cfg.Neighbors, cfg.Weights)
	if err := regressor.Fit(trainX, trainY); err != nil {
		return nil, nil, fmt.Errorf("fit regressor: %w", err)
	}

	p := &Pipeline{
		Transformer: transformer,
		Regressor:   regressor,
		TrainedAt:   time.Now().UTC(),
		TrainRows:   len(trainRows),
	}

	eval := &Evaluation{TrainRows: len(trainRows), TestRows: len(testRows), Dropped: extra}
	if eval.TrainR2, err = p.Score(trainRows, trainY); err != nil {
		return nil, nil, err
	}
	testPred, err := p.predictAll(testRows)
	if err != nil {
		return nil, nil, err
	}
	if eval.TestR2, err = RSquared(testPred, testY); err != nil {
		return nil, nil, err
	}
	if eval.TestMAE, err = MeanAbsoluteError(testPred, testY); err != nil {
		return nil, nil, err
	}
	if eval.TestRMSE, err = RootMeanSquaredError(testPred, testY); err != nil {
		return nil, nil, err
	}
	return p, eval, nil
}

func (p *Pipeline) Predict(row Row) (float64, error) {
	x, err := p.Transformer.Transform(row)
	if err != nil {
		return 0, err
	}
	return p.Regressor.Predict(x)
}

// Score is the R² of the pipeline's predictions against targets.
func (p *Pipeline) Score(rows []Row, targets []float64) (float64, error) {
	pred, err := p.predictAll(rows)
	if err != nil {
		return 0, err
	}
	return RSquared(pred, targets)
}

// Width is the length of the transformed feature vector.
func (p *Pipeline) Width() int {
	return p.Transformer.Width()
}

// UnseenCategories names the categorical fields of row whose value is not in
// the training vocabulary and therefore contributes nothing to the vector.
func (p *Pipeline) UnseenCategories(row Row) []string {
	var unseen []string
	filled := p.Transformer.CategoricalImputer.Transform(row.Categorical)
	for j, value := range filled {
		if !p.Transformer.Encoder.Known(j, value) {
			unseen = append(unseen, categoricalNames[j])
		}
	}
	return unseen
}

func (p *Pipeline) predictAll(rows []Row) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		v, err := p.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *Pipeline) validate() error {
	if p.Transformer == nil || p.Regressor == nil {
		return errors.New("artifact is incomplete")
	}
	t := p.Transformer
	for _, n := range []int{len(t.NumericImputer.Means), len(t.Scaler.Mins), len(t.Scaler.Maxs)} {
		if n != len(numericNames) {
			return fmt.Errorf("artifact has %d numeric statistics, schema has %d numeric fields", n, len(numericNames))
		}
	}
	for _, n := range []int{len(t.CategoricalImputer.Modes), len(t.Encoder.Categories)} {
		if n != len(categoricalNames) {
			return fmt.Errorf("artifact has %d categorical statistics, schema has %d categorical fields", n, len(categoricalNames))
		}
	}
	if p.Transformer.Width() != p.Regressor.Dim() {
		return fmt.Errorf("artifact transformer width %d does not match regressor width %d", p.Transformer.Width(), p.Regressor.Dim())
	}
	return nil
}

func pick(rows []Row, targets []float64, idx []int) ([]Row, []float64) {
	outRows := make([]Row, len(idx))
	outY := make([]float64, len(idx))
	for i, j := range idx {
		outRows[i] = rows[j]
		outY[i] = targets[j]
	}
	return outRows, outY
}

func transformAll(t *ColumnTransformer, rows []Row) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		x, err := t.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}
