package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StepState tracks one step through its lifecycle.
type StepState string

const (
	StepPending   StepState = "pending"
	StepRunning   StepState = "running"
	StepRetrying  StepState = "retrying"
	StepSucceeded StepState = "succeeded"
	StepFatal     StepState = "fatal"
)

// RunState is the overall outcome of a pipeline run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// Step is one sequential unit of the pipeline.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// RetryPolicy bounds transient-failure retries. Delay doubles per attempt
// up to MaxDelay.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DelayFor returns the backoff before the given retry, attempt counting
// from 1.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	delay := p.Delay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// RunRecord is the persisted outcome of one pipeline run.
type RunRecord struct {
	RunKey      string     `db:"run_key"`
	TriggeredBy string     `db:"triggered_by"`
	State       RunState   `db:"state"`
	StartedAt   time.Time  `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
	Error       string     `db:"error"`
}

// StepRecord is the persisted outcome of one step attempt. Each attempt
// gets its own id; re-recording the same attempt keeps it.
type StepRecord struct {
	ID         string     `db:"id"`
	RunKey     string     `db:"run_key"`
	Step       string     `db:"step"`
	Attempt    int        `db:"attempt"`
	State      StepState  `db:"state"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Error      string     `db:"error"`
}

// RunStore persists run and step bookkeeping.
type RunStore interface {
	BeginRun(ctx context.Context, run RunRecord) error
	FinishRun(ctx context.Context, runKey string, state RunState, errMsg string) error
	RecordStep(ctx context.Context, step StepRecord) error
}

// Runner executes steps strictly in order, retrying transient failures and
// halting on the first fatal one. Later steps never start once a step has
// gone fatal.
type Runner struct {
	steps  []Step
	policy RetryPolicy
	store  RunStore
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewRunner creates a pipeline runner
func NewRunner(steps []Step, policy RetryPolicy, store RunStore, logger *zap.Logger) *Runner {
	return &Runner{
		steps:  steps,
		policy: policy,
		store:  store,
		logger: logger,
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// RunKey derives the idempotent key for a run triggered at the given time.
// Two triggers with the same timestamp and kind are the same run.
func RunKey(trigger string, at time.Time) string {
	return fmt.Sprintf("%s-%s", trigger, at.UTC().Format("20060102-150405"))
}

// Execute runs the full pipeline once under the given run key.
func (r *Runner) Execute(ctx context.Context, runKey, triggeredBy string) error {
	instanceID := uuid.New().String()
	logger := r.logger.With(
		zap.String("runKey", runKey),
		zap.String("instanceID", instanceID))

	started := r.now()
	if err := r.store.BeginRun(ctx, RunRecord{
		RunKey:      runKey,
		TriggeredBy: triggeredBy,
		State:       RunRunning,
		StartedAt:   started,
	}); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}

	logger.Info("Pipeline run started",
		zap.String("trigger", triggeredBy),
		zap.Int("steps", len(r.steps)))

	for _, step := range r.steps {
		if err := r.executeStep(ctx, logger, runKey, step); err != nil {
			finishErr := r.store.FinishRun(ctx, runKey, RunFailed, err.Error())
			if finishErr != nil {
				logger.Warn("Failed to record run failure", zap.Error(finishErr))
			}
			logger.Error("Pipeline run failed",
				zap.String("step", step.Name),
				zap.String("class", Classify(err).String()),
				zap.Error(err))
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
	}

	if err := r.store.FinishRun(ctx, runKey, RunSucceeded, ""); err != nil {
		logger.Warn("Failed to record run success", zap.Error(err))
	}
	logger.Info("Pipeline run succeeded",
		zap.Duration("duration", r.now().Sub(started)))
	return nil
}

func (r *Runner) executeStep(ctx context.Context, logger *zap.Logger, runKey string, step Step) error {
	for attempt := 1; ; attempt++ {
		record := StepRecord{
			ID:        uuid.New().String(),
			RunKey:    runKey,
			Step:      step.Name,
			Attempt:   attempt,
			State:     StepRunning,
			StartedAt: r.now(),
		}
		if err := r.store.RecordStep(ctx, record); err != nil {
			return fmt.Errorf("failed to record step start: %w", err)
		}

		logger.Info("Step started",
			zap.String("step", step.Name),
			zap.Int("attempt", attempt))

		err := step.Run(ctx)
		finished := r.now()
		record.FinishedAt = &finished

		if err == nil {
			record.State = StepSucceeded
			if storeErr := r.store.RecordStep(ctx, record); storeErr != nil {
				logger.Warn("Failed to record step success", zap.Error(storeErr))
			}
			logger.Info("Step succeeded",
				zap.String("step", step.Name),
				zap.Int("attempt", attempt))
			return nil
		}

		record.Error = err.Error()
		class := Classify(err)

		if class == ErrorClassTransient && attempt <= r.policy.Attempts {
			record.State = StepRetrying
			if storeErr := r.store.RecordStep(ctx, record); storeErr != nil {
				logger.Warn("Failed to record step retry", zap.Error(storeErr))
			}

			delay := r.policy.DelayFor(attempt)
			logger.Warn("Step failed, retrying",
				zap.String("step", step.Name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))

			if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		record.State = StepFatal
		if storeErr := r.store.RecordStep(ctx, record); storeErr != nil {
			logger.Warn("Failed to record step failure", zap.Error(storeErr))
		}
		if class == ErrorClassTransient {
			return fmt.Errorf("exhausted %d attempts: %w", attempt, err)
		}
		return err
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
