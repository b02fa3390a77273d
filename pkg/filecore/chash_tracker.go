package filecore

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/driftbox/driftbox/pkg/content/chash"
	"github.com/driftbox/driftbox/pkg/store/metadata"
)

// chashWorkers bounds the concurrent hash computations of one tracker.
const chashWorkers = 4

// CHashTracker is a scoped batch builder for content hashes: submitted
// readers are hashed off the caller's path and recorded against their
// file IDs when the scope commits.
type CHashTracker struct {
	core *Core
	g    *errgroup.Group

	mu    sync.Mutex
	pairs []metadata.CHashPair
}

// CHashBatch opens a tracker scope. Close it with Commit.
func (c *Core) CHashBatch() *CHashTracker {
	g := &errgroup.Group{}
	g.SetLimit(chashWorkers)
	return &CHashTracker{core: c, g: g}
}

// Submit schedules the content hash of r for fileID. The reader is
// consumed on a worker; it must stay valid until Commit returns.
func (t *CHashTracker) Submit(fileID string, r io.Reader) {
	t.g.Go(func() error {
		sum, err := chash.Sum(r)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.pairs = append(t.pairs, metadata.CHashPair{FileID: fileID, CHash: sum})
		t.mu.Unlock()
		return nil
	})
}

// Commit waits for the in-flight hashes and records the batch. The
// tracker must not be reused afterwards.
func (t *CHashTracker) Commit(ctx context.Context) error {
	if err := t.g.Wait(); err != nil {
		return err
	}
	t.mu.Lock()
	pairs := t.pairs
	t.pairs = nil
	t.mu.Unlock()
	return t.core.meta.Files.SetCHashBatch(ctx, pairs)
}
