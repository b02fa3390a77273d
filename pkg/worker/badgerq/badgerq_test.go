package badgerq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/worker"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New(Config{InMemory: true, PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func runQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitStatus(t *testing.T, q *Queue, id string, want worker.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := q.GetStatus(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	status, _ := q.GetStatus(context.Background(), id)
	t.Fatalf("job %s status = %s, want %s", id, status, want)
}

func TestEnqueueAndExecute(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	got := make(chan string, 1)
	q.Register("greet", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		got <- args["name"].(string)
		return map[string]any{"greeting": "hello"}, nil
	})
	runQueue(t, q)

	id, err := q.Enqueue(ctx, "greet", map[string]any{"name": "world"})
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, q, id, worker.StatusSucceeded)

	if name := <-got; name != "world" {
		t.Errorf("handler arg = %q", name)
	}
	job, err := q.GetResult(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Result["greeting"] != "hello" {
		t.Errorf("result = %+v", job.Result)
	}
	if job.StartedAt == nil || job.FinishedAt == nil {
		t.Error("timestamps not recorded")
	}
}

func TestFailedJobCapturesError(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Register("boom", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return nil, errors.New("exploded")
	})
	runQueue(t, q)

	id, err := q.Enqueue(ctx, "boom", nil)
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, q, id, worker.StatusFailed)

	job, err := q.GetResult(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Error != "exploded" {
		t.Errorf("error = %q", job.Error)
	}
}

func TestUnregisteredJobFails(t *testing.T) {
	q := newTestQueue(t)
	runQueue(t, q)

	id, err := q.Enqueue(context.Background(), "nobody_home", nil)
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, q, id, worker.StatusFailed)
}

func TestGetResultUnknownJob(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.GetResult(context.Background(), "missing")
	if !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestJobsRunInEnqueueOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	var order []string
	done := make(chan struct{}, 3)
	q.Register("step", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		order = append(order, args["n"].(string))
		done <- struct{}{}
		return nil, nil
	})

	for _, n := range []string{"1", "2", "3"} {
		if _, err := q.Enqueue(ctx, "step", map[string]any{"n": n}); err != nil {
			t.Fatal(err)
		}
	}
	runQueue(t, q)
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
		}
	}
	if len(order) != 3 || order[0] != "1" || order[1] != "2" || order[2] != "3" {
		t.Errorf("order = %v", order)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	q, err := New(Config{Path: dir, PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	id, err := q.Enqueue(ctx, "later", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	q, err = New(Config{Path: dir, PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = q.Close() })
	q.Register("later", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return nil, nil
	})
	runQueue(t, q)
	waitStatus(t, q, id, worker.StatusSucceeded)
}
