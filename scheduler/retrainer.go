package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sbsk/ml"
	"sbsk/monitoring"
)

// ErrTrainingInProgress is returned by RunOnce while another run is active.
var ErrTrainingInProgress = errors.New("training already in progress")

// Retrainer 定时重训练
type Retrainer struct {
	mu       sync.Mutex
	training sync.Mutex
	running  bool

	schedule  string
	cron      *cron.Cron
	job       *TrainJob
	predictor *ml.Predictor
	metrics   *monitoring.MetricsCollector
	log       *zap.Logger

	lastRun time.Time
	lastErr error
}

// NewRetrainer schedules job with a standard five-field cron expression (or
// a descriptor such as "@daily"). metrics may be nil.
func NewRetrainer(schedule string, job *TrainJob, predictor *ml.Predictor, metrics *monitoring.MetricsCollector, log *zap.Logger) (*Retrainer, error) {
	if job == nil || predictor == nil {
		return nil, errors.New("training job and predictor are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	r := &Retrainer{
		schedule:  schedule,
		job:       job,
		predictor: predictor,
		metrics:   metrics,
		log:       log,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
	r.cron.Schedule(sched, cron.FuncJob(r.runScheduled))
	return r, nil
}

// Start 启动调度器
func (r *Retrainer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("retrainer is already running")
	}
	r.running = true
	r.cron.Start()
	r.log.Info("retrainer started",
		zap.String("schedule", r.schedule),
		zap.Time("next_run", r.NextRun()),
	)
	return nil
}

// Stop waits for a running job until ctx expires.
func (r *Retrainer) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return errors.New("retrainer is not running")
	}
	r.running = false
	r.mu.Unlock()

	select {
	case <-r.cron.Stop().Done():
		r.log.Info("retrainer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning 检查调度器是否运行中
func (r *Retrainer) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// NextRun is zero until Start.
func (r *Retrainer) NextRun() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// LastRun reports when the last run finished and how.
func (r *Retrainer) LastRun() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun, r.lastErr
}

func (r *Retrainer) runScheduled() {
	if err := r.RunOnce(context.Background()); err != nil && !errors.Is(err, ErrTrainingInProgress) {
		r.log.Error("scheduled training failed", zap.Error(err))
	}
}

// RunOnce trains now and swaps the result in. A failed run keeps the current
// model.
func (r *Retrainer) RunOnce(ctx context.Context) error {
	if !r.training.TryLock() {
		return ErrTrainingInProgress
	}
	defer r.training.Unlock()

	p, _, err := r.job.Run(ctx)
	if r.metrics != nil {
		r.metrics.RecordTraining(err)
	}

	r.mu.Lock()
	r.lastRun = time.Now()
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		return err
	}
	r.predictor.Swap(p)
	if r.metrics != nil {
		r.metrics.RecordReload("retrain", nil)
	}
	return nil
}
