package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"sbsk/config"
	"sbsk/ml"
)

func testDataset(n int) *ml.Dataset {
	ds := &ml.Dataset{Columns: ml.RequiredColumns()}
	numeric := ml.NumericFields()
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(ds.Columns))
		var staff float64
		for j := range numeric {
			v := float64((i*7 + j*3) % 11)
			staff += v
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		row = append(row,
			[]string{"A", "B", "C"}[i%3],
			[]string{"K1", "K2"}[i%2],
			[]string{"pusat", "daerah"}[(i/2)%2],
			[]string{"1", "2", "3"}[i%3],
		)
		row = append(row, fmt.Sprintf("%.2f", staff*9.5+float64(i%3)*40))
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func testPipeline(t *testing.T) *ml.Pipeline {
	t.Helper()
	p, _, err := ml.Train(testDataset(30), ml.DefaultTrainConfig())
	require.NoError(t, err)
	return p
}

func testValues() url.Values {
	values := url.Values{}
	for j, name := range ml.NumericFields() {
		values.Set(name, strconv.Itoa((j*3)%11))
	}
	values.Set("kode_eselon_i", "A")
	values.Set("kode_korwil", "K1")
	values.Set("tipe_kantor", "pusat")
	values.Set("tipe_bangunan", "1")
	return values
}

func testRecord() ml.Record {
	rec := ml.Record{}
	for name := range testValues() {
		rec[name] = testValues().Get(name)
	}
	return rec
}

// expectedValue is what the pipeline itself predicts for rec.
func expectedValue(t *testing.T, p *ml.Pipeline, rec ml.Record) float64 {
	t.Helper()
	row, err := ml.Coerce(rec)
	require.NoError(t, err)
	v, err := p.Predict(row)
	require.NoError(t, err)
	return v
}

type testEnv struct {
	server    *Server
	cfg       *config.Config
	predictor *ml.Predictor
}

// newTestEnv builds a server around p, which may be nil.
func newTestEnv(t *testing.T, p *ml.Pipeline, history History) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ML.ModelPath = filepath.Join(dir, "ml_pipeline.gob")
	cfg.Http.UploadDir = filepath.Join(dir, "uploads")

	predictor, err := ml.NewPredictor(p)
	require.NoError(t, err)
	s, err := NewServer(cfg, Deps{Predictor: predictor, History: history})
	require.NoError(t, err)
	return &testEnv{server: s, cfg: cfg, predictor: predictor}
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}
