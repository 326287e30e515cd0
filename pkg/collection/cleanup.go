package collection

import (
	"go.uber.org/zap"
)

// The passes below sweep nil entries left behind when an external layer
// (persistence, remapping) resolves references that no longer exist. They
// should never find anything during normal editing.

// RemoveNullObjects drops nil object entries from every collection, scene
// masters included, and invalidates the affected caches. It returns the
// number of entries removed.
func (l *Library) RemoveNullObjects() int {
	removed := 0
	for _, c := range l.allCollections() {
		kept := c.objects[:0]
		for _, ob := range c.objects {
			if ob != nil {
				kept = append(kept, ob)
			}
		}
		if n := len(c.objects) - len(kept); n > 0 {
			clear(c.objects[len(kept):])
			c.objects = kept
			removed += n
			invalidateCache(c)
		}
	}
	if removed > 0 {
		l.log.Info("removed dangling object references", zap.Int("count", removed))
	}
	return removed
}

// RemoveNullChildren cleans up around old after its child references were
// remapped away: old's children forget old as a parent, old's parents drop
// nil child entries, and old loses its parent set. The view layers resync
// when any parent changed.
func (l *Library) RemoveNullChildren(old *Collection) int {
	if old == nil {
		return 0
	}
	for _, child := range old.children {
		if child == nil {
			continue
		}
		if j := child.FindParent(old); j >= 0 {
			child.parents = append(child.parents[:j], child.parents[j+1:]...)
		}
	}

	removed := 0
	for _, p := range old.parents {
		if p == nil {
			continue
		}
		if n := dropNilChildren(p); n > 0 {
			removed += n
			invalidateCache(p)
		}
	}
	old.parents = nil

	if removed > 0 {
		l.sync()
	}
	return removed
}

// RemoveNullLinks drops nil entries from every child list and parent set in
// the library and invalidates the affected caches. It returns the number of
// entries removed.
func (l *Library) RemoveNullLinks() int {
	removed := 0
	for _, c := range l.allCollections() {
		n := dropNilChildren(c)

		kept := c.parents[:0]
		for _, p := range c.parents {
			if p != nil {
				kept = append(kept, p)
			}
		}
		n += len(c.parents) - len(kept)
		clear(c.parents[len(kept):])
		c.parents = kept

		if n > 0 {
			removed += n
			invalidateCache(c)
		}
	}
	if removed > 0 {
		l.log.Info("removed dangling collection references", zap.Int("count", removed))
	}
	return removed
}

func dropNilChildren(c *Collection) int {
	kept := c.children[:0]
	for _, child := range c.children {
		if child != nil {
			kept = append(kept, child)
		}
	}
	n := len(c.children) - len(kept)
	clear(c.children[len(kept):])
	c.children = kept
	return n
}

// allCollections lists scene masters followed by library collections.
func (l *Library) allCollections() []*Collection {
	out := make([]*Collection, 0, len(l.scenes)+len(l.collections))
	for _, s := range l.scenes {
		if s.Master != nil {
			out = append(out, s.Master)
		}
	}
	return append(out, l.collections...)
}
