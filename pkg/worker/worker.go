// Package worker defines the background job contract: named jobs with
// JSON-friendly argument maps, durable status and per-job error capture.
// The badgerq subpackage provides the durable implementation.
package worker

import (
	"context"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is the durable record of one enqueued unit of work.
type Job struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`

	Status Status         `json:"status"`
	Error  string         `json:"error,omitempty"`
	Result map[string]any `json:"result,omitempty"`

	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Handler executes one job. The returned map is stored as the job
// result.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Worker runs registered handlers against a durable queue.
type Worker interface {
	// Enqueue adds a job and returns its ID.
	Enqueue(ctx context.Context, name string, args map[string]any) (string, error)

	// GetStatus returns the current lifecycle state of a job.
	GetStatus(ctx context.Context, id string) (Status, error)

	// GetResult returns the full job record, including the result map
	// and captured error of finished jobs.
	GetResult(ctx context.Context, id string) (*Job, error)

	// Register binds a handler to a job name. Jobs with no handler fail.
	Register(name string, handler Handler)

	// Run processes jobs until ctx is cancelled. A job interrupted by
	// cancellation goes back to pending.
	Run(ctx context.Context) error

	// Close releases the queue's resources.
	Close() error
}
