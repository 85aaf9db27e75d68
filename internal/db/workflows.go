package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkflowStepRepository memoizes durable-workflow step results.
type WorkflowStepRepository struct {
	pool *pgxpool.Pool
}

// GetStep returns a step's memoized result, or ErrNotFound if the step has
// not completed in this workflow run.
func (r *WorkflowStepRepository) GetStep(ctx context.Context, workflowID, stepName string) ([]byte, error) {
	query := `
		SELECT result_json
		FROM workflow_steps
		WHERE workflow_id = $1 AND step_name = $2
	`
	var resultJSON string
	err := r.pool.QueryRow(ctx, query, workflowID, stepName).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying workflow step: %w", err)
	}
	return []byte(resultJSON), nil
}

// PutStep records a step's result. A replayed step keeps its first result.
func (r *WorkflowStepRepository) PutStep(ctx context.Context, workflowID, stepName string, resultJSON []byte) error {
	query := `
		INSERT INTO workflow_steps (workflow_id, step_name, result_json, completed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (workflow_id, step_name) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, workflowID, stepName, string(resultJSON)); err != nil {
		return fmt.Errorf("recording workflow step: %w", err)
	}
	return nil
}
