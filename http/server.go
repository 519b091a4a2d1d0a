// Package http serves the prediction form, the JSON and websocket prediction
// APIs, spreadsheet upload and model administration.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sbsk/config"
	"sbsk/db"
	"sbsk/ml"
	"sbsk/monitoring"
	"sbsk/pipeline"
)

// History is the subset of the store the handlers use.
type History interface {
	SavePrediction(ctx context.Context, p db.PredictionLog) error
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionLog, error)
	LatestTrainingRun(ctx context.Context) (*db.TrainingRun, error)
}

// Deps are the collaborators shared with the rest of the process. History
// may be nil when the store is disabled.
type Deps struct {
	Predictor *ml.Predictor
	History   History
	Metrics   *monitoring.MetricsCollector
	Logger    *zap.Logger
}

// Server HTTP服务器
type Server struct {
	server    *http.Server
	handler   http.Handler
	cfg       *config.Config
	predictor *ml.Predictor
	history   History
	metrics   *monitoring.MetricsCollector
	log       *zap.Logger
	loader    *pipeline.DatasetLoader
}

// NewServer wires routes and middleware. It does not start listening.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Predictor == nil {
		return nil, errors.New("predictor is required")
	}
	s := &Server{
		cfg:       cfg,
		predictor: deps.Predictor,
		history:   deps.History,
		metrics:   deps.Metrics,
		log:       deps.Logger,
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewMetricsCollector()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.loader = pipeline.NewDatasetLoader(pipeline.LoadOptions{
		Sheet:    cfg.ML.Sheet,
		Encoding: cfg.ML.Encoding,
		Renames:  cfg.ML.ColumnRenames,
	}, s.log)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	chain := Chain(
		RecoveryMiddleware(s.log),
		LoggerMiddleware(s.log),
		SecurityHeadersMiddleware,
		RequestSizeMiddleware(cfg.Http.MaxUploadMB<<20),
	)
	s.handler = chain(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Http.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.Http.Timeout,
		WriteTimeout: cfg.Http.Timeout,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleForm)
	mux.HandleFunc("GET /predict", s.handleForm)
	mux.HandleFunc("POST /predict", s.handleFormPredict)
	mux.HandleFunc("GET /upload", s.handleUploadForm)
	mux.HandleFunc("POST /upload", s.handleUpload)

	mux.HandleFunc("POST /api/predict", s.handleAPIPredict)
	mux.HandleFunc("GET /api/ws/predict", s.handleWSPredict)
	mux.HandleFunc("GET /api/model", s.handleModelInfo)
	mux.HandleFunc("POST /api/model/reload", s.handleModelReload)
	mux.HandleFunc("POST /api/model/save", s.handleModelSave)
	mux.HandleFunc("GET /api/predictions", s.handlePredictions)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start 启动服务器
func (s *Server) Start() error {
	s.log.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", "/api/ws/predict"),
	)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
