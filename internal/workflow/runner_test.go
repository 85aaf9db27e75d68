package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bandaid/internal/db"
)

// memStepLog is an in-memory StepLog.
type memStepLog struct {
	mu    sync.Mutex
	steps map[string][]byte
}

func newMemStepLog() *memStepLog {
	return &memStepLog{steps: make(map[string][]byte)}
}

func (l *memStepLog) GetStep(_ context.Context, workflowID, stepName string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	result, ok := l.steps[workflowID+"/"+stepName]
	if !ok {
		return nil, db.ErrNotFound
	}
	return result, nil
}

func (l *memStepLog) PutStep(_ context.Context, workflowID, stepName string, resultJSON []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := workflowID + "/" + stepName
	if _, ok := l.steps[key]; ok {
		return nil
	}
	l.steps[key] = resultJSON
	return nil
}

func TestDoMemoizesResult(t *testing.T) {
	log := newMemStepLog()
	run := NewRun("wf-1", log)
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) (string, error) {
		calls++
		return "computed", nil
	}

	first, err := Do(ctx, run, "step", fn)
	if err != nil {
		t.Fatalf("first Do() error = %v", err)
	}
	second, err := Do(ctx, run, "step", fn)
	if err != nil {
		t.Fatalf("second Do() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("fn ran %d times, want 1", calls)
	}
	if first != "computed" || second != "computed" {
		t.Errorf("results = %q, %q", first, second)
	}
}

func TestDoDistinctStepsAndRuns(t *testing.T) {
	log := newMemStepLog()
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	runA := NewRun("wf-a", log)
	runB := NewRun("wf-b", log)

	if _, err := Do(ctx, runA, "step", fn); err != nil {
		t.Fatal(err)
	}
	if _, err := Do(ctx, runA, "other-step", fn); err != nil {
		t.Fatal(err)
	}
	if _, err := Do(ctx, runB, "step", fn); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("fn ran %d times, want one per (run, step)", calls)
	}
}

func TestDoFailedStepIsNotMemoized(t *testing.T) {
	log := newMemStepLog()
	run := NewRun("wf-1", log)
	ctx := context.Background()

	boom := errors.New("transient")
	calls := 0
	fn := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", boom
		}
		return "recovered", nil
	}

	if _, err := Do(ctx, run, "step", fn); !errors.Is(err, boom) {
		t.Fatalf("first Do() error = %v, want %v", err, boom)
	}
	result, err := Do(ctx, run, "step", fn)
	if err != nil {
		t.Fatalf("second Do() error = %v", err)
	}
	if result != "recovered" {
		t.Errorf("result = %q", result)
	}
	if calls != 2 {
		t.Errorf("fn ran %d times, want retry after failure", calls)
	}
}

func TestDoMemoizesNilPointer(t *testing.T) {
	log := newMemStepLog()
	run := NewRun("wf-1", log)
	ctx := context.Background()

	type artist struct{ Name string }
	calls := 0
	fn := func(context.Context) (*artist, error) {
		calls++
		return nil, nil
	}

	for i := 0; i < 2; i++ {
		got, err := Do(ctx, run, "search", fn)
		if err != nil {
			t.Fatalf("Do() #%d error = %v", i+1, err)
		}
		if got != nil {
			t.Errorf("Do() #%d = %+v, want nil", i+1, got)
		}
	}
	if calls != 1 {
		t.Errorf("fn ran %d times, want memoized miss", calls)
	}
}
