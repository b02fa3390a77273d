// Package badgerq is the durable job queue behind the worker, stored in
// an embedded Badger database so enqueued jobs survive restarts.
//
// Layout: "job:<id>" holds the JSON job record; "pending:<seq>:<id>"
// orders runnable jobs by enqueue time. Claiming a job deletes its
// pending key and flips the record to running in one transaction.
package badgerq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/metrics"
	"github.com/driftbox/driftbox/pkg/worker"
)

const (
	prefixJob     = "job:"
	prefixPending = "pending:"
)

// defaultPollInterval bounds how long the run loop sleeps between queue
// probes when no enqueue notification arrives.
const defaultPollInterval = time.Second

// Config tunes the queue.
type Config struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string `mapstructure:"path" yaml:"path"`

	// InMemory keeps the queue in process memory. For tests.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`

	// PollInterval bounds the idle wakeup period of the run loop.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// Queue is the Badger-backed worker.
type Queue struct {
	db      *badgerdb.DB
	poll    time.Duration
	notify  chan struct{}
	metrics *metrics.JobMetrics

	mu       sync.RWMutex
	handlers map[string]worker.Handler
}

// New opens the queue at the configured location.
func New(cfg Config) (*Queue, error) {
	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open job queue: %w", err)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Queue{
		db:       db,
		poll:     poll,
		notify:   make(chan struct{}, 1),
		handlers: map[string]worker.Handler{},
	}, nil
}

// SetMetrics attaches job metrics. A nil set disables instrumentation.
func (q *Queue) SetMetrics(m *metrics.JobMetrics) {
	q.metrics = m
}

// Register binds a handler to a job name.
func (q *Queue) Register(name string, handler worker.Handler) {
	q.mu.Lock()
	q.handlers[name] = handler
	q.mu.Unlock()
}

// Enqueue persists a job and wakes the run loop.
func (q *Queue) Enqueue(ctx context.Context, name string, args map[string]any) (string, error) {
	job := &worker.Job{
		ID:         uuid.NewString(),
		Name:       name,
		Args:       args,
		Status:     worker.StatusPending,
		EnqueuedAt: time.Now().UTC(),
	}
	err := q.db.Update(func(txn *badgerdb.Txn) error {
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := txn.Set(keyJob(job.ID), data); err != nil {
			return err
		}
		return txn.Set(keyPending(job.EnqueuedAt, job.ID), nil)
	})
	if err != nil {
		return "", apperror.Internal("failed to enqueue job", err)
	}
	q.metrics.RecordEnqueued(name)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return job.ID, nil
}

// GetStatus returns the lifecycle state of a job.
func (q *Queue) GetStatus(ctx context.Context, id string) (worker.Status, error) {
	job, err := q.GetResult(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// GetResult returns the full job record.
func (q *Queue) GetResult(ctx context.Context, id string) (*worker.Job, error) {
	var job worker.Job
	err := q.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyJob(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, apperror.NotFound(id)
	}
	if err != nil {
		return nil, apperror.Internal("failed to load job", err)
	}
	return &job, nil
}

// Run claims and executes jobs until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		job, err := q.claim()
		if err != nil {
			return err
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.notify:
			case <-time.After(q.poll):
			}
			continue
		}
		if err := q.execute(ctx, job); err != nil {
			return err
		}
	}
}

// Close releases the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// claim pops the oldest pending job and marks it running. Returns nil
// when the queue is empty.
func (q *Queue) claim() (*worker.Job, error) {
	var job *worker.Job
	err := q.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPending)
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		pendingKey := it.Item().KeyCopy(nil)
		id := string(pendingKey[bytes.LastIndexByte(pendingKey, ':')+1:])

		item, err := txn.Get(keyJob(id))
		if err != nil {
			return err
		}
		var j worker.Job
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &j)
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		j.Status = worker.StatusRunning
		j.StartedAt = &now
		if err := q.put(txn, &j); err != nil {
			return err
		}
		if err := txn.Delete(pendingKey); err != nil {
			return err
		}
		job = &j
		return nil
	})
	if err != nil {
		return nil, apperror.Internal("failed to claim job", err)
	}
	return job, nil
}

// execute runs the handler and records the outcome. A job interrupted
// by shutdown goes back to pending so the next run picks it up.
func (q *Queue) execute(ctx context.Context, job *worker.Job) error {
	q.mu.RLock()
	handler, ok := q.handlers[job.Name]
	q.mu.RUnlock()

	start := time.Now()
	var result map[string]any
	var err error
	if !ok {
		err = fmt.Errorf("no handler registered for %q", job.Name)
	} else {
		result, err = handler(ctx, job.Args)
	}

	if err != nil && ctx.Err() != nil {
		return q.requeue(job)
	}

	q.metrics.RecordExecution(job.Name, time.Since(start), err != nil)
	now := time.Now().UTC()
	job.FinishedAt = &now
	job.Result = result
	if err != nil {
		job.Status = worker.StatusFailed
		job.Error = err.Error()
		logger.WarnCtx(ctx, "job failed", "job", job.Name, "id", job.ID, "error", err)
	} else {
		job.Status = worker.StatusSucceeded
		logger.DebugCtx(ctx, "job succeeded", "job", job.Name, "id", job.ID)
	}
	uerr := q.db.Update(func(txn *badgerdb.Txn) error {
		return q.put(txn, job)
	})
	if uerr != nil {
		return apperror.Internal("failed to record job outcome", uerr)
	}
	return nil
}

func (q *Queue) requeue(job *worker.Job) error {
	job.Status = worker.StatusPending
	job.StartedAt = nil
	err := q.db.Update(func(txn *badgerdb.Txn) error {
		if err := q.put(txn, job); err != nil {
			return err
		}
		return txn.Set(keyPending(job.EnqueuedAt, job.ID), nil)
	})
	if err != nil {
		return apperror.Internal("failed to requeue job", err)
	}
	return context.Canceled
}

func (q *Queue) put(txn *badgerdb.Txn, job *worker.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return txn.Set(keyJob(job.ID), data)
}

func keyJob(id string) []byte {
	return []byte(prefixJob + id)
}

func keyPending(at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixPending, at.UnixNano(), id))
}
