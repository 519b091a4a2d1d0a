package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"sbsk/ml"
	"sbsk/monitoring"
)

const defaultDebounce = 200 * time.Millisecond

// ModelWatcher reloads the artifact when it is created or rewritten. It
// watches the parent directory so atomic renames are seen.
type ModelWatcher struct {
	path      string
	predictor *ml.Predictor
	metrics   *monitoring.MetricsCollector
	log       *zap.Logger
	watcher   *fsnotify.Watcher
	debounce  time.Duration
}

// NewModelWatcher starts watching the directory of path, creating it if
// needed. metrics may be nil.
func NewModelWatcher(path string, predictor *ml.Predictor, metrics *monitoring.MetricsCollector, log *zap.Logger) (*ModelWatcher, error) {
	if predictor == nil {
		return nil, errors.New("predictor is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &ModelWatcher{
		path:      abs,
		predictor: predictor,
		metrics:   metrics,
		log:       log,
		watcher:   watcher,
		debounce:  defaultDebounce,
	}, nil
}

// Run handles events until ctx is cancelled, then closes the watcher.
func (w *ModelWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	w.log.Info("watching model artifact", zap.String("path", w.path))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				timer.Reset(w.debounce)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.log.Warn("model artifact removed, keeping loaded model", zap.String("path", w.path))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("model watcher error", zap.Error(err))
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *ModelWatcher) reload() {
	p, err := ml.Load(w.path)
	if w.metrics != nil {
		w.metrics.RecordReload("watcher", err)
	}
	if err != nil {
		w.log.Warn("model reload failed, keeping loaded model", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.predictor.Swap(p)
	w.log.Info("model reloaded",
		zap.String("path", w.path),
		zap.Time("trained_at", p.TrainedAt),
		zap.Int("train_rows", p.TrainRows),
	)
}
