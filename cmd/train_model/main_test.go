package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbsk/ml"
)

func writeCSV(t *testing.T, dir string, columns []string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "sbsk.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(columns))
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(columns))
		for _, c := range columns {
			switch c {
			case "kode_eselon_i", "kode_korwil", "tipe_kantor":
				row = append(row, "A")
			case "tipe_bangunan":
				row = append(row, strconv.Itoa(1+i%3))
			case ml.TargetColumn:
				row = append(row, fmt.Sprint(100+i*3))
			default:
				row = append(row, strconv.Itoa((i+len(c))%5))
			}
		}
		require.NoError(t, w.Write(row))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return path
}

func TestRunTrainsAndSaves(t *testing.T) {
	dir := t.TempDir()
	data := writeCSV(t, dir, ml.RequiredColumns(), 25)
	model := filepath.Join(dir, "out", "ml_pipeline.gob")
	dbPath := filepath.Join(dir, "sbsk.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database:\n  path: "+dbPath+"\nlog:\n  level: error\n"), 0o600))

	err := run([]string{"-config", cfgPath, "-data", data, "-model_path", model, "-neighbors", "3", "-weights", "distance"})
	require.NoError(t, err)

	p, err := ml.Load(model)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Regressor.K)
	assert.Equal(t, ml.DistanceWeights, p.Regressor.Weights)
	assert.Equal(t, 20, p.TrainRows)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestRunFailsWithoutArtifact(t *testing.T) {
	t.Setenv("SBSK_DB_PATH", "")
	dir := t.TempDir()
	columns := ml.RequiredColumns()[1:]
	data := writeCSV(t, dir, columns, 25)
	model := filepath.Join(dir, "ml_pipeline.gob")
	cfg := filepath.Join(dir, "absent.yaml")

	err := run([]string{"-config", cfg, "-data", data, "-model_path", model})
	var schemaErr *ml.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	_, statErr := os.Stat(model)
	assert.ErrorIs(t, statErr, os.ErrNotExist)

	assert.Error(t, run([]string{"-config", cfg, "-model_path", model}), "no dataset")
	assert.Error(t, run([]string{"-config", cfg, "-data", data, "-weights", "gaussian"}))
	assert.Error(t, run([]string{"-bogus"}))
}
