package collection

import (
	"iter"
)

// CollectionIterator walks every collection of a scene once, depth-first,
// children before siblings, starting at the master collection.
//
// The walk is materialized when the iterator is created:
//
//	it := collection.NewCollectionIterator(scene)
//	defer it.End()
//	for ; it.Valid(); it.Next() {
//		fmt.Println(it.Current().Name)
//	}
//
// End releases the materialized array; an ended iterator stays invalid.
type CollectionIterator struct {
	array []*Collection
	cur   int
	ended bool
}

// NewCollectionIterator begins a collection traversal of s.
func NewCollectionIterator(s *Scene) *CollectionIterator {
	it := &CollectionIterator{}
	if s == nil || s.Master == nil {
		return it
	}

	seen := collectionSets.Get()
	defer collectionSets.Put(seen)

	// count, then fill an array of exactly that size
	n := walkCollections(s.Master, seen, nil)
	clear(seen)
	it.array = collectionBufs.Get(n)
	walkCollections(s.Master, seen, func(c *Collection) {
		it.array = append(it.array, c)
	})
	return it
}

// walkCollections visits each collection reachable from root once in
// depth-first preorder and returns how many it visited.
func walkCollections(root *Collection, seen map[*Collection]struct{}, visit func(*Collection)) int {
	stack := collectionBufs.Get(0)
	defer func() { collectionBufs.Put(stack) }()

	n := 0
	stack = append(stack, root)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		n++
		if visit != nil {
			visit(cur)
		}
		for i := len(cur.children) - 1; i >= 0; i-- {
			if child := cur.children[i]; child != nil {
				stack = append(stack, child)
			}
		}
	}
	return n
}

// Valid reports whether Current refers to a collection.
func (it *CollectionIterator) Valid() bool {
	return !it.ended && it.cur < len(it.array)
}

// Current returns the collection at the iterator position, or nil.
func (it *CollectionIterator) Current() *Collection {
	if !it.Valid() {
		return nil
	}
	return it.array[it.cur]
}

// Next advances to the following collection.
func (it *CollectionIterator) Next() {
	if it.Valid() {
		it.cur++
	}
}

// Len returns the number of collections in the traversal.
func (it *CollectionIterator) Len() int { return len(it.array) }

// End releases the traversal state. It is safe to call more than once.
func (it *CollectionIterator) End() {
	if it.ended {
		return
	}
	it.ended = true
	if it.array != nil {
		collectionBufs.Put(it.array)
		it.array = nil
	}
}

// ObjectIterator walks every object of a scene once, visiting collections in
// CollectionIterator order and each collection's direct objects in list order.
// Objects already produced through an earlier collection are skipped.
type ObjectIterator struct {
	collections *CollectionIterator
	seen        map[*Object]struct{}
	pending     []*Object
	pos         int
	current     *Object
	ended       bool
}

// NewObjectIterator begins an object traversal of s and positions it on the
// first object.
func NewObjectIterator(s *Scene) *ObjectIterator {
	it := &ObjectIterator{
		collections: NewCollectionIterator(s),
		seen:        objectSets.Get(),
	}
	if c := it.collections.Current(); c != nil {
		it.pending = c.objects
	}
	it.advance()
	return it
}

func (it *ObjectIterator) advance() {
	it.current = nil
	for {
		for it.pos < len(it.pending) {
			ob := it.pending[it.pos]
			it.pos++
			if ob == nil {
				continue
			}
			if _, ok := it.seen[ob]; ok {
				continue
			}
			it.seen[ob] = struct{}{}
			it.current = ob
			return
		}
		it.collections.Next()
		c := it.collections.Current()
		if c == nil {
			it.pending = nil
			return
		}
		it.pending = c.objects
		it.pos = 0
	}
}

// Valid reports whether Current refers to an object.
func (it *ObjectIterator) Valid() bool {
	return !it.ended && it.current != nil
}

// Current returns the object at the iterator position, or nil.
func (it *ObjectIterator) Current() *Object {
	if it.ended {
		return nil
	}
	return it.current
}

// Next advances to the next unseen object.
func (it *ObjectIterator) Next() {
	if it.Valid() {
		it.advance()
	}
}

// End releases the seen-set and the wrapped collection traversal.
func (it *ObjectIterator) End() {
	if it.ended {
		return
	}
	it.ended = true
	it.current = nil
	it.pending = nil
	it.collections.End()
	objectSets.Put(it.seen)
	it.seen = nil
}

// AllCollections returns a range-over-func sequence over NewCollectionIterator.
func (s *Scene) AllCollections() iter.Seq[*Collection] {
	return func(yield func(*Collection) bool) {
		it := NewCollectionIterator(s)
		defer it.End()
		for ; it.Valid(); it.Next() {
			if !yield(it.Current()) {
				return
			}
		}
	}
}

// AllObjects returns a range-over-func sequence over NewObjectIterator.
func (s *Scene) AllObjects() iter.Seq[*Object] {
	return func(yield func(*Object) bool) {
		it := NewObjectIterator(s)
		defer it.End()
		for ; it.Valid(); it.Next() {
			if !yield(it.Current()) {
				return
			}
		}
	}
}

// FromIndex returns the collection at a depth-first preorder position of the
// scene tree, counting children before siblings and counting a collection once
// per place it appears (as a tree view lists it). It returns nil when index is
// out of range.
func FromIndex(s *Scene, index int) *Collection {
	if s == nil || s.Master == nil || index < 0 {
		return nil
	}
	stack := []*Collection{s.Master}
	for current := 0; len(stack) > 0; current++ {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == index {
			return cur
		}
		for i := len(cur.children) - 1; i >= 0; i-- {
			if child := cur.children[i]; child != nil {
				stack = append(stack, child)
			}
		}
	}
	return nil
}
