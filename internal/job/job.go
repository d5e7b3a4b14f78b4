// Package job tracks one run of a batch binary and persists its progress.
package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/store"
)

// Finish states.
const (
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Recorder persists job rows. *store.Store implements it.
type Recorder interface {
	SaveJob(ctx context.Context, job store.Job) error
}

// Info describes what is being run.
type Info struct {
	Name    string
	Script  string
	LogPath string
	Version string
}

type Option func(*Job)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// WithID fixes the job ID instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(j *Job) { j.id = id }
}

type Job struct {
	id     uuid.UUID
	info   Info
	rec    Recorder
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	phase     string
	startedAt time.Time
	elapsed   time.Duration
	state     string
	err       string
}

// New creates a job with a fresh ID. rec may be nil, in which case nothing is persisted.
func New(info Info, rec Recorder, logger *zap.Logger, opts ...Option) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Job{
		id:     uuid.New(),
		info:   info,
		rec:    rec,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.With(zap.String("job_id", j.id.String()), zap.String("job", info.Name))
	return j
}

func (j *Job) ID() uuid.UUID { return j.id }

func (j *Job) Logger() *zap.Logger { return j.logger }

// Start marks the job running and persists the initial row.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	j.startedAt = j.now()
	j.state = StateRunning
	j.phase = "start"
	row := j.rowLocked()
	j.mu.Unlock()

	j.logger.Info("job started",
		zap.String("script", j.info.Script),
		zap.String("log_path", j.info.LogPath),
		zap.String("version", j.info.Version),
	)
	return j.save(ctx, row)
}

// Phase records the step the job is in.
func (j *Job) Phase(ctx context.Context, name string) error {
	j.mu.Lock()
	if j.state != StateRunning {
		j.mu.Unlock()
		return errors.Wrapf(errors.New("job is not running"), "enter phase %s", name)
	}
	j.phase = name
	j.elapsed = j.now().Sub(j.startedAt)
	row := j.rowLocked()
	j.mu.Unlock()

	j.logger.Info("job phase", zap.String("phase", name))
	return j.save(ctx, row)
}

// Finish records the outcome. A nil runErr means success. Calling Finish twice keeps the first outcome.
func (j *Job) Finish(ctx context.Context, runErr error) error {
	j.mu.Lock()
	if j.state != StateRunning {
		j.mu.Unlock()
		return nil
	}
	j.elapsed = j.now().Sub(j.startedAt)
	j.state = StateSucceeded
	if runErr != nil {
		j.state = StateFailed
		j.err = runErr.Error()
	}
	row := j.rowLocked()
	j.mu.Unlock()

	if runErr != nil {
		j.logger.Error("job failed", zap.Error(runErr), zap.String("phase", row.Phase), zap.Float64("elapsed_seconds", row.ElapsedSeconds))
	} else {
		j.logger.Info("job succeeded", zap.Float64("elapsed_seconds", row.ElapsedSeconds))
	}
	return j.save(ctx, row)
}

// Row returns the current persisted form of the job.
func (j *Job) Row() store.Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rowLocked()
}

func (j *Job) rowLocked() store.Job {
	return store.Job{
		ID:             j.id.String(),
		Name:           j.info.Name,
		Script:         j.info.Script,
		LogPath:        j.info.LogPath,
		Version:        j.info.Version,
		Phase:          j.phase,
		StartedAt:      j.startedAt,
		ElapsedSeconds: j.elapsed.Seconds(),
		FinishState:    j.state,
		Error:          j.err,
	}
}

func (j *Job) save(ctx context.Context, row store.Job) error {
	if j.rec == nil {
		return nil
	}
	return errors.Wrapf(j.rec.SaveJob(ctx, row), "persist job %s", row.ID)
}
