// Package workflow implements the durable background workflows: poster
// research and image normalization. Each workflow run records every step's
// JSON result under (workflow id, step name) before moving on; a rerun of
// the same workflow id replays completed steps from the log instead of
// executing them again.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"bandaid/internal/db"
)

// StepLog persists step results, implemented by db.WorkflowStepRepository.
type StepLog interface {
	GetStep(ctx context.Context, workflowID, stepName string) ([]byte, error)
	PutStep(ctx context.Context, workflowID, stepName string, resultJSON []byte) error
}

// Run is one durable workflow execution identified by its workflow id.
type Run struct {
	id  string
	log StepLog
}

// NewRun binds a workflow id to its step log.
func NewRun(id string, log StepLog) *Run {
	return &Run{id: id, log: log}
}

// Do executes the named step at most once per run. A step already in the
// log returns its stored result verbatim; otherwise fn runs and its result
// is committed before Do returns. Step names must be stable across retries.
func Do[T any](ctx context.Context, run *Run, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	stored, err := run.log.GetStep(ctx, run.id, name)
	if err == nil {
		var result T
		if err := json.Unmarshal(stored, &result); err != nil {
			return zero, fmt.Errorf("decoding memoized step %s: %w", name, err)
		}
		return result, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return zero, err
	}

	result, err := fn(ctx)
	if err != nil {
		return zero, fmt.Errorf("step %s: %w", name, err)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("encoding step %s result: %w", name, err)
	}
	if err := run.log.PutStep(ctx, run.id, name, encoded); err != nil {
		return zero, err
	}
	return result, nil
}
