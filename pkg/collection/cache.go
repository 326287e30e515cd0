package collection

import (
	"context"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/scenegraph/pkg/pool"
)

// cacheStripes guard first-time cache fills. A collection always maps to the
// same stripe, so only readers of that collection (or of one sharing the
// stripe) wait while it is filled.
const cacheStripes = 64

var cacheLocks [cacheStripes]sync.Mutex

var (
	objectSets     = pool.NewSetPool[*Object](64)
	collectionSets = pool.NewSetPool[*Collection](32)
	collectionBufs = pool.NewSlicePool[*Collection](32)
)

func stripeFor(c *Collection) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(c.ID))
	return &cacheLocks[h.Sum32()%cacheStripes]
}

// Flattened returns every object reachable from c through its children, each
// once, in depth-first order (own objects first, then each child in order).
// When an object is reachable along several paths the first one wins, and its
// restriction flags are those accumulated along that path.
//
// The returned slice is shared and must not be modified. It stays valid until
// the next mutation affecting c's subtree.
func (c *Collection) Flattened() []Base {
	if c == nil {
		return nil
	}
	if c.cacheValid.Load() {
		cacheHits.Inc()
		return c.cache
	}

	mu := stripeFor(c)
	mu.Lock()
	defer mu.Unlock()
	if !c.cacheValid.Load() {
		c.cache = fillObjectCache(c)
		c.cacheValid.Store(true)
		cacheFills.Inc()
	} else {
		cacheHits.Inc()
	}
	return c.cache
}

// RecomputeFlattened builds the flattened list from the membership lists
// without reading or writing any cache.
func RecomputeFlattened(c *Collection) []Base {
	if c == nil {
		return nil
	}
	return fillObjectCache(c)
}

func fillObjectCache(c *Collection) []Base {
	seen := objectSets.Get()
	defer objectSets.Put(seen)

	var out []Base
	var fill func(c *Collection, parentRestrict Flag)
	fill = func(c *Collection, parentRestrict Flag) {
		restrict := (c.flag | parentRestrict) & RestrictMask
		for _, ob := range c.objects {
			if ob == nil {
				continue
			}
			if _, ok := seen[ob]; ok {
				continue
			}
			seen[ob] = struct{}{}
			out = append(out, newBase(ob, restrict))
		}
		for _, child := range c.children {
			if child != nil {
				fill(child, restrict)
			}
		}
	}
	fill(c, 0)
	return out
}

// invalidateCache drops the cache of c and of every ancestor reachable over
// parent back-edges. It returns the number of collections visited.
func invalidateCache(c *Collection) int {
	if c == nil {
		return 0
	}
	visited := collectionSets.Get()
	defer collectionSets.Put(visited)
	queue := collectionBufs.Get(0)
	defer func() { collectionBufs.Put(queue) }()

	queue = append(queue, c)
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}

		mu := stripeFor(cur)
		mu.Lock()
		cur.cacheValid.Store(false)
		cur.cache = nil
		mu.Unlock()

		for _, p := range cur.parents {
			if p != nil {
				queue = append(queue, p)
			}
		}
	}
	cacheInvalidations.Add(float64(len(visited)))
	return len(visited)
}

// InvalidateCache clears the flattened cache of c and every ancestor.
func (l *Library) InvalidateCache(c *Collection) {
	n := invalidateCache(c)
	l.log.Debug("object cache invalidated", zap.Stringer("collection", c), zap.Int("collections", n))
}

// WarmCaches fills the flattened cache of every collection in the scene using
// up to the configured number of goroutines. No mutation may run concurrently.
func (l *Library) WarmCaches(ctx context.Context, s *Scene) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.warmWorkers)

	for c := range s.AllCollections() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.Flattened()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
