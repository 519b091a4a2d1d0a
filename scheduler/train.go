// Package scheduler retrains the pipeline on a cron schedule and hot-swaps
// the served model when its artifact changes on disk.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sbsk/db"
	"sbsk/ml"
	"sbsk/pipeline"
)

// RunRecorder stores completed training runs.
type RunRecorder interface {
	SaveTrainingRun(ctx context.Context, run db.TrainingRun) error
}

// TrainJob loads a dataset, fits the pipeline and writes the artifact.
type TrainJob struct {
	DatasetPath string
	ModelPath   string
	Loader      *pipeline.DatasetLoader
	Config      ml.TrainConfig
	// Runs is optional.
	Runs RunRecorder
	Log  *zap.Logger
}

// Run executes the job. The artifact is written only after training
// succeeds. A failure to record the run is logged, not returned.
func (j *TrainJob) Run(ctx context.Context) (*ml.Pipeline, *db.TrainingRun, error) {
	log := j.Log
	if log == nil {
		log = zap.NewNop()
	}
	if j.DatasetPath == "" {
		return nil, nil, errors.New("dataset path is required")
	}
	if j.ModelPath == "" {
		return nil, nil, errors.New("model path is required")
	}
	loader := j.Loader
	if loader == nil {
		loader = pipeline.NewDatasetLoader(pipeline.LoadOptions{}, log)
	}

	start := time.Now()
	ds, err := loader.Load(j.DatasetPath)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	p, eval, err := ml.Train(ds, j.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("train %s: %w", j.DatasetPath, err)
	}
	if len(eval.Dropped) > 0 {
		log.Warn("ignoring columns outside the schema", zap.Strings("columns", eval.Dropped))
	}
	if err := ml.Save(j.ModelPath, p); err != nil {
		return nil, nil, fmt.Errorf("save artifact: %w", err)
	}

	run := &db.TrainingRun{
		ID:          uuid.NewString(),
		ModelPath:   j.ModelPath,
		DatasetPath: j.DatasetPath,
		TrainRows:   eval.TrainRows,
		TestRows:    eval.TestRows,
		TrainR2:     eval.TrainR2,
		TestR2:      eval.TestR2,
		TestMAE:     eval.TestMAE,
		TestRMSE:    eval.TestRMSE,
		Neighbors:   p.Regressor.K,
		Weights:     string(p.Regressor.Weights),
		Dropped:     eval.Dropped,
		TrainedAt:   p.TrainedAt,
	}
	log.Info("pipeline trained",
		zap.String("run_id", run.ID),
		zap.String("dataset", j.DatasetPath),
		zap.String("model", j.ModelPath),
		zap.Int("train_rows", eval.TrainRows),
		zap.Int("test_rows", eval.TestRows),
		zap.Float64("train_r2", eval.TrainR2),
		zap.Float64("test_r2", eval.TestR2),
		zap.Float64("test_mae", eval.TestMAE),
		zap.Float64("test_rmse", eval.TestRMSE),
		zap.Duration("duration", time.Since(start)),
	)

	if j.Runs != nil {
		if err := j.Runs.SaveTrainingRun(ctx, *run); err != nil {
			log.Warn("failed to record training run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return p, run, nil
}
