package ml

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// State is where a prediction request ended up.
type State string

const (
	StateReceived         State = "received"
	StateCoerced          State = "coerced"
	StatePredicted        State = "predicted"
	StateCoercionFailed   State = "coercion_failed"
	StateModelUnavailable State = "model_unavailable"
	StatePredictionFailed State = "prediction_failed"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

type ErrorKind string

const (
	KindConversion  ErrorKind = "ConversionError"
	KindUnavailable ErrorKind = "ModelUnavailable"
	KindPrediction  ErrorKind = "PredictionFailed"
)

// Outcome is the result of one prediction request.
type Outcome struct {
	Status Status    `json:"status"`
	Value  *float64  `json:"value,omitempty"`
	Kind   ErrorKind `json:"kind,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Field  string    `json:"field,omitempty"`

	State  State    `json:"-"`
	Cached bool     `json:"-"`
	Unseen []string `json:"-"`
}

func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

const DefaultCacheSize = 1024

type cacheEntry struct {
	model *Pipeline
	value float64
}

// Predictor turns raw records into predictions using the pipeline it was
// given. The pipeline pointer is swapped atomically, so concurrent callers
// always see either the old or the new model.
type Predictor struct {
	model atomic.Pointer[Pipeline]
	cache *lru.Cache[string, cacheEntry]
}

type PredictorOption func(*predictorOptions)

type predictorOptions struct {
	cacheSize int
}

// WithCacheSize sets the number of cached predictions; zero disables the
// cache.
func WithCacheSize(n int) PredictorOption {
	return func(o *predictorOptions) {
		o.cacheSize = n
	}
}

// NewPredictor wraps p, which may be nil when no artifact exists yet.
func NewPredictor(p *Pipeline, opts ...PredictorOption) (*Predictor, error) {
	o := predictorOptions{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	pr := &Predictor{}
	if o.cacheSize > 0 {
		cache, err := lru.New[string, cacheEntry](o.cacheSize)
		if err != nil {
			return nil, err
		}
		pr.cache = cache
	}
	if p != nil {
		pr.model.Store(p)
	}
	return pr, nil
}

// Model returns the current pipeline or nil.
func (pr *Predictor) Model() *Pipeline {
	return pr.model.Load()
}

func (pr *Predictor) Available() bool {
	return pr.model.Load() != nil
}

// Swap installs p and returns the previous pipeline.
func (pr *Predictor) Swap(p *Pipeline) *Pipeline {
	old := pr.model.Swap(p)
	if pr.cache != nil {
		pr.cache.Purge()
	}
	return old
}

// Predict runs Received → Coerced → {Predicted | CoercionFailed |
// ModelUnavailable}. It never mutates the pipeline.
func (pr *Predictor) Predict(rec Record) Outcome {
	model := pr.model.Load()
	if model == nil {
		return Outcome{
			Status: StatusError,
			Kind:   KindUnavailable,
			Detail: "no trained model is loaded",
			State:  StateModelUnavailable,
		}
	}

	row, err := Coerce(rec)
	if err != nil {
		out := Outcome{
			Status: StatusError,
			Kind:   KindConversion,
			Detail: err.Error(),
			State:  StateCoercionFailed,
		}
		var convErr *ConversionError
		if errors.As(err, &convErr) {
			out.Field = convErr.Field
		}
		return out
	}

	unseen := model.UnseenCategories(row)
	key := rowKey(row)
	if pr.cache != nil {
		if entry, ok := pr.cache.Get(key); ok && entry.model == model {
			return predicted(entry.value, true, unseen)
		}
	}

	value, err := model.Predict(row)
	if err != nil {
		return Outcome{
			Status: StatusError,
			Kind:   KindPrediction,
			Detail: err.Error(),
			State:  StatePredictionFailed,
		}
	}
	if pr.cache != nil {
		pr.cache.Add(key, cacheEntry{model: model, value: value})
	}
	return predicted(value, false, unseen)
}

func predicted(value float64, cached bool, unseen []string) Outcome {
	return Outcome{
		Status: StatusOK,
		Value:  &value,
		State:  StatePredicted,
		Cached: cached,
		Unseen: unseen,
	}
}

func rowKey(row Row) string {
	var b strings.Builder
	for _, v := range row.Numeric {
		b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
		b.WriteByte(0x1f)
	}
	for _, c := range row.Categorical {
		b.WriteString(strconv.Quote(c.Value))
		b.WriteByte(0x1f)
	}
	return b.String()
}
