package collection

import (
	"errors"
	"fmt"
)

// Verify errors
var (
	ErrUnpairedEdge = errors.New("unpaired child/parent edge")
	ErrCycle        = errors.New("collection cycle")
	ErrStaleCache   = errors.New("stale object cache")
	ErrDeletedNode  = errors.New("edge to deleted node")
)

// Verify checks the graph invariants: every child edge has its parent
// back-edge and vice versa, no edge reaches a deleted collection or freed
// object, no collection is its own ancestor, and every filled cache equals a
// fresh recomputation. All violations are joined.
func (l *Library) Verify() error {
	var errs []error
	all := l.allCollections()

	for _, c := range all {
		if c.deleted {
			errs = append(errs, fmt.Errorf("%w: %s is still registered", ErrDeletedNode, c.Name))
		}
		for _, ob := range c.objects {
			if ob.deleted {
				errs = append(errs, fmt.Errorf("%w: %s holds freed object %s", ErrDeletedNode, c.Name, ob.Name))
			}
			if ob.Instance != nil && ob.Instance.deleted {
				errs = append(errs, fmt.Errorf("%w: %s instances deleted %s", ErrDeletedNode, ob.Name, ob.Instance.Name))
			}
		}
		for _, child := range c.children {
			if child == nil {
				continue
			}
			if child.deleted {
				errs = append(errs, fmt.Errorf("%w: %s -> %s", ErrDeletedNode, c.Name, child.Name))
			}
			if child.FindParent(c) < 0 {
				errs = append(errs, fmt.Errorf("%w: %s -> %s has no parent edge", ErrUnpairedEdge, c.Name, child.Name))
			}
		}
		for _, p := range c.parents {
			if p == nil {
				continue
			}
			if p.deleted {
				errs = append(errs, fmt.Errorf("%w: %s lists deleted parent %s", ErrDeletedNode, c.Name, p.Name))
			}
			if p.FindChild(c) < 0 {
				errs = append(errs, fmt.Errorf("%w: %s lists parent %s without child edge", ErrUnpairedEdge, c.Name, p.Name))
			}
		}
	}

	if c := findAnyCycle(all); c != nil {
		errs = append(errs, fmt.Errorf("%w: through %s", ErrCycle, c.Name))
	}

	for _, c := range all {
		if !c.cacheValid.Load() {
			continue
		}
		if !sameBases(c.cache, fillObjectCache(c)) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrStaleCache, c.Name))
		}
	}

	return errors.Join(errs...)
}

func sameBases(a, b []Base) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// findAnyCycle returns a collection on a child-edge cycle, or nil.
func findAnyCycle(all []*Collection) *Collection {
	const (
		white = iota
		grey
		black
	)
	color := make(map[*Collection]int, len(all))

	type frame struct {
		c    *Collection
		next int
	}
	for _, root := range all {
		if color[root] != white {
			continue
		}
		stack := []frame{{c: root}}
		color[root] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(top.c.children) {
				color[top.c] = black
				stack = stack[:len(stack)-1]
				continue
			}
			child := top.c.children[top.next]
			top.next++
			if child == nil {
				continue
			}
			switch color[child] {
			case grey:
				return child
			case white:
				color[child] = grey
				stack = append(stack, frame{c: child})
			}
		}
	}
	return nil
}
