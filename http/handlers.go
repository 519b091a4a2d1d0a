package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sbsk/db"
	"sbsk/ml"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// KindBadRequest marks a request the adapter never saw: malformed JSON or an
// oversized body.
const KindBadRequest = "BadRequest"

type errorBody struct {
	Status ml.Status `json:"status"`
	Kind   string    `json:"kind,omitempty"`
	Detail string    `json:"detail"`
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, data interface{}) {
	respondStatus(w, http.StatusOK, data)
}

func respondStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, code int, detail string) {
	respondStatus(w, code, errorBody{Status: ml.StatusError, Detail: detail})
}

func respondBadRequest(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		code = http.StatusRequestEntityTooLarge
	}
	respondStatus(w, code, errorBody{Status: ml.StatusError, Kind: KindBadRequest, Detail: err.Error()})
}

// outcomeStatus maps an outcome to its HTTP status.
func outcomeStatus(out ml.Outcome) int {
	if out.OK() {
		return http.StatusOK
	}
	switch out.Kind {
	case ml.KindConversion:
		return http.StatusUnprocessableEntity
	case ml.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func outcomeLabel(out ml.Outcome) string {
	if out.OK() {
		return string(ml.StatusOK)
	}
	return string(out.Kind)
}

// decodeRecord reads one JSON object. Numbers are kept as json.Number so
// coercion sees exactly what the client sent.
func decodeRecord(r io.Reader) (ml.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var rec ml.Record
	if err := dec.Decode(&rec); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid JSON record: %w", err)
	}
	if rec == nil {
		return nil, errors.New("record must be a JSON object")
	}
	return rec, nil
}

// predict runs the adapter and records the outcome in metrics, the log and
// the history store.
func (s *Server) predict(ctx context.Context, rec ml.Record, source string) ml.Outcome {
	start := time.Now()
	out := s.predictor.Predict(rec)
	elapsed := time.Since(start)

	s.metrics.RecordPrediction(outcomeLabel(out), out.Cached, elapsed)

	fields := []zap.Field{
		zap.String("request_id", GetRequestID(ctx)),
		zap.String("source", source),
		zap.String("state", string(out.State)),
		zap.Duration("duration", elapsed),
	}
	switch {
	case out.OK():
		s.log.Debug("prediction", append(fields, zap.Float64("value", *out.Value), zap.Bool("cached", out.Cached))...)
	case out.Kind == ml.KindConversion:
		s.log.Info("prediction rejected", append(fields, zap.String("field", out.Field), zap.String("detail", out.Detail))...)
	default:
		s.log.Warn("prediction failed", append(fields, zap.String("kind", string(out.Kind)), zap.String("detail", out.Detail))...)
	}
	if len(out.Unseen) > 0 {
		s.log.Warn("unseen categories encoded as all zeros", zap.Strings("fields", out.Unseen))
	}

	s.recordPrediction(ctx, rec, out, elapsed)
	return out
}

func (s *Server) recordPrediction(ctx context.Context, rec ml.Record, out ml.Outcome, elapsed time.Duration) {
	if s.history == nil {
		return
	}
	input, _ := json.Marshal(rec)
	entry := db.PredictionLog{
		ID:        uuid.NewString(),
		Status:    string(out.Status),
		Value:     out.Value,
		Kind:      string(out.Kind),
		Detail:    out.Detail,
		Field:     out.Field,
		Cached:    out.Cached,
		Input:     input,
		LatencyMS: float64(elapsed.Microseconds()) / 1000,
	}
	if err := s.history.SavePrediction(ctx, entry); err != nil {
		s.log.Warn("failed to record prediction", zap.Error(err))
	}
}

func (s *Server) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(r.Body)
	if err != nil {
		respondBadRequest(w, err)
		return
	}
	out := s.predict(r.Context(), rec, "api")
	respondStatus(w, outcomeStatus(out), out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status":       "ok",
		"model_loaded": s.predictor.Available(),
		"uptime":       s.metrics.GetUptime().Truncate(time.Second).String(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		io.WriteString(w, s.metrics.ExportPrometheus())
		return
	}
	respondJSON(w, s.metrics.Snapshot())
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, "prediction history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(l, maxHistoryLimit)
	}

	logs, err := s.history.RecentPredictions(r.Context(), limit)
	if err != nil {
		s.log.Error("failed to query predictions", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to query predictions")
		return
	}
	respondJSON(w, map[string]interface{}{
		"count":       len(logs),
		"predictions": logs,
	})
}
