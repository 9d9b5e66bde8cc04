package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/chanpulse/warehouse/pkg/connector"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRunStore persists run bookkeeping in the ops schema. BeginRun
// upserts on run key, so re-triggering an identical run resumes its record
// instead of creating a second one.
type PostgresRunStore struct {
	postgres connector.DatabaseConnector
	timeout  time.Duration
}

// NewPostgresRunStore creates an ops-schema run store
func NewPostgresRunStore(postgres connector.DatabaseConnector) *PostgresRunStore {
	return &PostgresRunStore{
		postgres: postgres,
		timeout:  time.Second * 30,
	}
}

// BeginRun implements RunStore.
func (s *PostgresRunStore) BeginRun(ctx context.Context, run RunRecord) error {
	query, args, err := psql.
		Insert("ops.pipeline_runs").
		Columns("run_key", "triggered_by", "state", "started_at").
		Values(run.RunKey, run.TriggeredBy, string(run.State), run.StartedAt).
		Suffix(`ON CONFLICT (run_key) DO UPDATE SET
			state = EXCLUDED.state,
			started_at = EXCLUDED.started_at,
			finished_at = NULL,
			error = NULL`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run insert: %w", err)
	}
	if _, err := s.postgres.ExecWithTimeout(ctx, query, s.timeout, args...); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun implements RunStore.
func (s *PostgresRunStore) FinishRun(ctx context.Context, runKey string, state RunState, errMsg string) error {
	query, args, err := psql.
		Update("ops.pipeline_runs").
		Set("state", string(state)).
		Set("finished_at", sq.Expr("NOW()")).
		Set("error", nullable(errMsg)).
		Where(sq.Eq{"run_key": runKey}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run update: %w", err)
	}
	if _, err := s.postgres.ExecWithTimeout(ctx, query, s.timeout, args...); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordStep implements RunStore.
func (s *PostgresRunStore) RecordStep(ctx context.Context, step StepRecord) error {
	query, args, err := psql.
		Insert("ops.step_executions").
		Columns("id", "run_key", "step", "attempt", "state", "started_at", "finished_at", "error").
		Values(step.ID, step.RunKey, step.Step, step.Attempt, string(step.State),
			step.StartedAt, step.FinishedAt, nullable(step.Error)).
		Suffix(`ON CONFLICT (run_key, step, attempt) DO UPDATE SET
			state = EXCLUDED.state,
			finished_at = EXCLUDED.finished_at,
			error = EXCLUDED.error`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build step insert: %w", err)
	}
	if _, err := s.postgres.ExecWithTimeout(ctx, query, s.timeout, args...); err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// MemoryRunStore keeps run bookkeeping in memory.
type MemoryRunStore struct {
	mu    sync.Mutex
	runs  map[string]RunRecord
	steps map[string][]StepRecord
}

// NewMemoryRunStore creates an in-memory run store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs:  make(map[string]RunRecord),
		steps: make(map[string][]StepRecord),
	}
}

// BeginRun implements RunStore.
func (s *MemoryRunStore) BeginRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunKey] = run
	return nil
}

// FinishRun implements RunStore.
func (s *MemoryRunStore) FinishRun(_ context.Context, runKey string, state RunState, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runKey]
	if !ok {
		return fmt.Errorf("unknown run %s", runKey)
	}
	now := time.Now()
	run.State = state
	run.FinishedAt = &now
	run.Error = errMsg
	s.runs[runKey] = run
	return nil
}

// RecordStep implements RunStore.
func (s *MemoryRunStore) RecordStep(_ context.Context, step StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.steps[step.RunKey]
	for i, existing := range records {
		if existing.Step == step.Step && existing.Attempt == step.Attempt {
			records[i] = step
			return nil
		}
	}
	s.steps[step.RunKey] = append(records, step)
	return nil
}

// Run returns the recorded run, if any.
func (s *MemoryRunStore) Run(runKey string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runKey]
	return run, ok
}

// Steps returns every step record for a run ordered by start time.
func (s *MemoryRunStore) Steps(runKey string) []StepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StepRecord, len(s.steps[runKey]))
	copy(out, s.steps[runKey])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
