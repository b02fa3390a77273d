// Package dedup detects near-duplicate images by perceptual fingerprint.
// Fingerprints are stored as four 16-bit parts; candidate pairs share at
// least one part, so the expensive Hamming comparison only runs on
// equality-matched candidates.
package dedup

import (
	"context"
	"image"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/content/dhash"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// DefaultMaxDistance is the Hamming distance up to which two fingerprints
// count as near-duplicates.
const DefaultMaxDistance = 5

// hashWorkers bounds the concurrent fingerprint computations of one
// tracker.
const hashWorkers = 4

// Service owns fingerprint persistence and duplicate grouping.
type Service struct {
	meta *metadata.Store
}

// NewService returns a Service over the metadata store.
func NewService(meta *metadata.Store) *Service {
	return &Service{meta: meta}
}

// Tracker is a scoped batch builder: submitted images are fingerprinted
// off the caller's path and persisted when the scope commits.
type Tracker struct {
	svc *Service
	g   *errgroup.Group

	mu  sync.Mutex
	fps []*metadata.Fingerprint
}

// Begin opens a tracker scope. Close it with Commit.
func (s *Service) Begin() *Tracker {
	g := &errgroup.Group{}
	g.SetLimit(hashWorkers)
	return &Tracker{svc: s, g: g}
}

// Submit schedules the fingerprint of img for fileID.
func (t *Tracker) Submit(fileID string, img image.Image) {
	t.g.Go(func() error {
		fp := &metadata.Fingerprint{FileID: fileID}
		fp.SetValue(dhash.Sum(img))
		t.mu.Lock()
		t.fps = append(t.fps, fp)
		t.mu.Unlock()
		return nil
	})
}

// Commit waits for the in-flight fingerprints and persists the batch.
// Files already fingerprinted keep their existing value.
func (t *Tracker) Commit(ctx context.Context) error {
	if err := t.g.Wait(); err != nil {
		return err
	}
	t.mu.Lock()
	fps := t.fps
	t.fps = nil
	t.mu.Unlock()

	for _, fp := range fps {
		err := t.svc.meta.Fingerprints.Save(ctx, fp)
		if err != nil && !apperror.IsCode(err, apperror.CodeFingerprintAlreadyExists) {
			return err
		}
	}
	return nil
}

// FindInFolder returns groups of near-duplicate files under (ns, folder):
// fingerprints within maxDistance of each other, chained transitively
// into connected components. Each group holds at least two file IDs,
// sorted; groups sort by their first member. A maxDistance of zero
// groups exact fingerprint matches only; negative values select the
// default.
func (s *Service) FindInFolder(ctx context.Context, ns string, folder vpath.Path, maxDistance int) ([][]string, error) {
	if maxDistance < 0 {
		maxDistance = DefaultMaxDistance
	}
	fps, err := s.meta.Fingerprints.IntersectAllWithPrefix(ctx, ns, folder)
	if err != nil {
		return nil, err
	}
	if len(fps) < 2 {
		return nil, nil
	}

	// Equality join on any of the four parts yields the candidate pairs.
	type pair struct{ a, b int }
	candidates := map[pair]bool{}
	for part := 0; part < 4; part++ {
		byValue := map[uint16][]int{}
		for i := range fps {
			v := partOf(&fps[i], part)
			byValue[v] = append(byValue[v], i)
		}
		for _, idxs := range byValue {
			for i := 0; i < len(idxs); i++ {
				for j := i + 1; j < len(idxs); j++ {
					candidates[pair{idxs[i], idxs[j]}] = true
				}
			}
		}
	}

	uf := newUnionFind(len(fps))
	for p := range candidates {
		if dhash.Distance(fps[p.a].Value(), fps[p.b].Value()) <= maxDistance {
			uf.union(p.a, p.b)
		}
	}

	members := map[int][]string{}
	for i := range fps {
		root := uf.find(i)
		members[root] = append(members[root], fps[i].FileID)
	}
	var groups [][]string
	for _, ids := range members {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		groups = append(groups, ids)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups, nil
}

func partOf(fp *metadata.Fingerprint, part int) uint16 {
	switch part {
	case 0:
		return fp.Part1
	case 1:
		return fp.Part2
	case 2:
		return fp.Part3
	default:
		return fp.Part4
	}
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
