package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/pipeline"
)

func newRunner(steps []pipeline.Step, store pipeline.RunStore) *pipeline.Runner {
	policy := pipeline.RetryPolicy{
		Attempts: 2,
		Delay:    time.Millisecond,
		MaxDelay: 4 * time.Millisecond,
	}
	return pipeline.NewRunner(steps, policy, store, zap.NewNop())
}

func TestRunKeyDeterministic(t *testing.T) {
	at := time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC)
	require.Equal(t, "daily-20240115-020000", pipeline.RunKey("daily", at))
	require.Equal(t, pipeline.RunKey("daily", at), pipeline.RunKey("daily", at))
	require.NotEqual(t, pipeline.RunKey("daily", at), pipeline.RunKey("manual", at))
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	store := pipeline.NewMemoryRunStore()
	var order []string
	steps := []pipeline.Step{
		{Name: "scrape", Run: func(context.Context) error { order = append(order, "scrape"); return nil }},
		{Name: "load_raw", Run: func(context.Context) error { order = append(order, "load_raw"); return nil }},
		{Name: "build", Run: func(context.Context) error { order = append(order, "build"); return nil }},
	}

	err := newRunner(steps, store).Execute(context.Background(), "run-1", "manual")
	require.NoError(t, err)
	require.Equal(t, []string{"scrape", "load_raw", "build"}, order)

	run, ok := store.Run("run-1")
	require.True(t, ok)
	require.Equal(t, pipeline.RunSucceeded, run.State)
	require.NotNil(t, run.FinishedAt)
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	store := pipeline.NewMemoryRunStore()
	calls := 0
	steps := []pipeline.Step{
		{Name: "load_raw", Run: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		}},
	}

	err := newRunner(steps, store).Execute(context.Background(), "run-2", "manual")
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	records := store.Steps("run-2")
	var states []pipeline.StepState
	for _, r := range records {
		states = append(states, r.State)
	}
	require.Contains(t, states, pipeline.StepRetrying)
	require.Equal(t, pipeline.StepSucceeded, states[len(states)-1])
}

func TestExecuteAssignsIDPerStepAttempt(t *testing.T) {
	store := pipeline.NewMemoryRunStore()
	calls := 0
	steps := []pipeline.Step{
		{Name: "load_raw", Run: func(context.Context) error {
			calls++
			if calls < 2 {
				return errors.New("connection refused")
			}
			return nil
		}},
		{Name: "build", Run: func(context.Context) error { return nil }},
	}

	err := newRunner(steps, store).Execute(context.Background(), "run-ids", "manual")
	require.NoError(t, err)

	records := store.Steps("run-ids")
	require.Len(t, records, 3)
	seen := make(map[string]bool)
	for _, r := range records {
		_, parseErr := uuid.Parse(r.ID)
		require.NoError(t, parseErr)
		require.False(t, seen[r.ID])
		seen[r.ID] = true
	}
}

func TestExecuteHaltsAfterRetryExhaustion(t *testing.T) {
	store := pipeline.NewMemoryRunStore()
	calls := 0
	laterRan := false
	steps := []pipeline.Step{
		{Name: "load_raw", Run: func(context.Context) error {
			calls++
			return errors.New("connection refused")
		}},
		{Name: "build", Run: func(context.Context) error { laterRan = true; return nil }},
	}

	err := newRunner(steps, store).Execute(context.Background(), "run-3", "manual")
	require.Error(t, err)
	// Initial attempt plus two retries.
	require.Equal(t, 3, calls)
	require.False(t, laterRan)

	run, _ := store.Run("run-3")
	require.Equal(t, pipeline.RunFailed, run.State)
	require.Contains(t, run.Error, "exhausted")
}

func TestExecuteDoesNotRetryFatal(t *testing.T) {
	store := pipeline.NewMemoryRunStore()
	calls := 0
	steps := []pipeline.Step{
		{Name: "publish", Run: func(context.Context) error {
			calls++
			return pipeline.Fatal(errors.New("schema missing"))
		}},
	}

	err := newRunner(steps, store).Execute(context.Background(), "run-4", "manual")
	require.Error(t, err)
	require.Equal(t, 1, calls)

	records := store.Steps("run-4")
	require.Equal(t, pipeline.StepFatal, records[len(records)-1].State)
}

func TestExecuteDoesNotRetryQualityFailure(t *testing.T) {
	store := pipeline.NewMemoryRunStore()
	calls := 0
	steps := []pipeline.Step{
		{Name: "quality_gate", Run: func(context.Context) error {
			calls++
			return &pipeline.QualityError{Failures: []string{"non_negative_counters"}}
		}},
	}

	err := newRunner(steps, store).Execute(context.Background(), "run-5", "manual")
	require.Error(t, err)
	require.Equal(t, 1, calls)

	var qerr *pipeline.QualityError
	require.ErrorAs(t, err, &qerr)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want pipeline.ErrorClass
	}{
		{"nil", nil, pipeline.ErrorClassNone},
		{"connection", errors.New("connection refused"), pipeline.ErrorClassTransient},
		{"timeout", errors.New("i/o timeout"), pipeline.ErrorClassTransient},
		{"deadline", context.DeadlineExceeded, pipeline.ErrorClassTransient},
		{"cancelled", context.Canceled, pipeline.ErrorClassFatal},
		{"fatal wrap", pipeline.Fatal(errors.New("boom")), pipeline.ErrorClassFatal},
		{"quality", &pipeline.QualityError{}, pipeline.ErrorClassQuality},
		{"unknown", errors.New("boom"), pipeline.ErrorClassFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, pipeline.Classify(tt.err))
		})
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := pipeline.RetryPolicy{
		Attempts: 5,
		Delay:    time.Second,
		MaxDelay: 5 * time.Second,
	}
	require.Equal(t, time.Second, policy.DelayFor(1))
	require.Equal(t, 2*time.Second, policy.DelayFor(2))
	require.Equal(t, 4*time.Second, policy.DelayFor(3))
	require.Equal(t, 5*time.Second, policy.DelayFor(4))
	require.Equal(t, 5*time.Second, policy.DelayFor(10))
}

func TestSchedulerNextTrigger(t *testing.T) {
	s := pipeline.NewScheduler(nil, 2, 30, zap.NewNop())

	before := time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 1, 15, 2, 30, 0, 0, time.UTC), s.NextTrigger(before))

	after := time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 1, 16, 2, 30, 0, 0, time.UTC), s.NextTrigger(after))

	exactly := time.Date(2024, 1, 15, 2, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 1, 16, 2, 30, 0, 0, time.UTC), s.NextTrigger(exactly))
}
