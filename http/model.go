package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sbsk/db"
	"sbsk/ml"
)

type modelInfo struct {
	Available bool            `json:"available"`
	ModelPath string          `json:"model_path"`
	TrainedAt *time.Time      `json:"trained_at,omitempty"`
	TrainRows int             `json:"train_rows,omitempty"`
	Width     int             `json:"width,omitempty"`
	Neighbors int             `json:"neighbors,omitempty"`
	Weights   string          `json:"weights,omitempty"`
	LatestRun *db.TrainingRun `json:"latest_run,omitempty"`
}

func (s *Server) modelInfo(ctx context.Context) modelInfo {
	info := modelInfo{ModelPath: s.cfg.ML.ModelPath}
	if p := s.predictor.Model(); p != nil {
		trainedAt := p.TrainedAt
		info.Available = true
		info.TrainedAt = &trainedAt
		info.TrainRows = p.TrainRows
		info.Width = p.Width()
		info.Neighbors = p.Regressor.K
		info.Weights = string(p.Regressor.Weights)
	}
	if s.history != nil {
		run, err := s.history.LatestTrainingRun(ctx)
		switch {
		case err == nil:
			info.LatestRun = run
		case !errors.Is(err, db.ErrNoRuns):
			s.log.Warn("failed to query latest training run", zap.Error(err))
		}
	}
	return info
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.modelInfo(r.Context()))
}

// handleModelReload reads the artifact from disk and swaps it in. A failed
// load keeps the current model.
func (s *Server) handleModelReload(w http.ResponseWriter, r *http.Request) {
	p, err := ml.Load(s.cfg.ML.ModelPath)
	s.metrics.RecordReload("api", err)
	if err != nil {
		s.log.Warn("model reload failed", zap.String("path", s.cfg.ML.ModelPath), zap.Error(err))
		if errors.Is(err, ml.ErrModelUnavailable) {
			respondStatus(w, http.StatusServiceUnavailable, errorBody{
				Status: ml.StatusError, Kind: string(ml.KindUnavailable), Detail: err.Error(),
			})
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.predictor.Swap(p)
	s.log.Info("model reloaded",
		zap.String("path", s.cfg.ML.ModelPath),
		zap.Time("trained_at", p.TrainedAt),
		zap.Int("train_rows", p.TrainRows),
	)
	respondJSON(w, s.modelInfo(r.Context()))
}

// handleModelSave persists the loaded pipeline to the configured path.
func (s *Server) handleModelSave(w http.ResponseWriter, r *http.Request) {
	p := s.predictor.Model()
	if p == nil {
		respondStatus(w, http.StatusServiceUnavailable, errorBody{
			Status: ml.StatusError, Kind: string(ml.KindUnavailable), Detail: "no trained model is loaded",
		})
		return
	}
	if err := ml.Save(s.cfg.ML.ModelPath, p); err != nil {
		s.log.Error("model save failed", zap.String("path", s.cfg.ML.ModelPath), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("model saved", zap.String("path", s.cfg.ML.ModelPath))
	respondJSON(w, map[string]string{"status": "saved", "path": s.cfg.ML.ModelPath})
}
