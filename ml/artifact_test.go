package ml

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactRoundTrip(t *testing.T) {
	p := mustTrain(testDataset(50))
	path := filepath.Join(t.TempDir(), "models", "ml_pipeline.gob")
	require.NoError(t, Save(path, p))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p.Width(), loaded.Width())
	assert.Equal(t, p.TrainRows, loaded.TrainRows)
	assert.True(t, p.TrainedAt.Equal(loaded.TrainedAt))

	for _, rec := range []Record{testRecord(), {}, {"kode_eselon_i": "Z", "toilet": "99"}} {
		row, err := Coerce(rec)
		require.NoError(t, err)
		want, err := p.Predict(row)
		require.NoError(t, err)
		got, err := loaded.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.gob"))
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadCorruptArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.gob")
	require.NoError(t, os.WriteFile(path, []byte("not a pipeline"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrModelUnavailable))
}

func TestEncodeRejectsMismatchedArtifact(t *testing.T) {
	p := mustTrain(testDataset(30))
	broken := *p
	broken.Regressor = NewKNNRegressor(5, UniformWeights)
	require.NoError(t, broken.Regressor.Fit([][]float64{{1}, {2}, {3}, {4}, {5}}, []float64{1, 2, 3, 4, 5}))

	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, &broken))
	assert.Error(t, Encode(&buf, nil))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "x.gob"), nil))
}

func TestLoadRejectsShortStatistics(t *testing.T) {
	tests := []struct {
		name     string
		truncate func(*ColumnTransformer)
	}{
		{name: "means", truncate: func(c *ColumnTransformer) { c.NumericImputer.Means = c.NumericImputer.Means[:3] }},
		{name: "maxs", truncate: func(c *ColumnTransformer) { c.Scaler.Maxs = c.Scaler.Maxs[:26] }},
		{name: "modes", truncate: func(c *ColumnTransformer) { c.CategoricalImputer.Modes = c.CategoricalImputer.Modes[:1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustTrain(testDataset(30))
			tr := *p.Transformer
			tt.truncate(&tr)
			broken := *p
			broken.Transformer = &tr

			var buf bytes.Buffer
			assert.Error(t, Encode(&buf, &broken))

			// written without validation, as an older build might have
			path := filepath.Join(t.TempDir(), "short.gob")
			f, err := os.Create(path)
			require.NoError(t, err)
			require.NoError(t, gob.NewEncoder(f).Encode(&broken))
			require.NoError(t, f.Close())

			_, err = Load(path)
			assert.ErrorContains(t, err, "statistics")
		})
	}
}
