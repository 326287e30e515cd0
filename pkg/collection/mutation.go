package collection

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================================
// Edge primitives (no view-layer sync)
// ============================================================================

// childAdd links child under parent. It refuses duplicates, master children
// and any edge that would close a cycle, before touching either list.
func (l *Library) childAdd(parent, child *Collection, flags LinkFlag, addUser bool) bool {
	if parent == nil || child == nil || parent.deleted || child.deleted {
		return false
	}
	if child.IsMaster() {
		return false
	}
	if parent.FindChild(child) >= 0 {
		return false
	}
	if FindCycle(parent, child) {
		return false
	}

	parent.children = append(parent.children, child)

	// Private copies do not register themselves as parents.
	if flags&CopyNoMain == 0 {
		child.parents = append(child.parents, parent)
	}
	if addUser && flags&CopyNoUserRefcount == 0 {
		child.users++
	}

	invalidateCache(parent)
	return true
}

func (l *Library) childRemove(parent, child *Collection) bool {
	if parent == nil || child == nil {
		return false
	}
	i := parent.FindChild(child)
	if i < 0 {
		return false
	}

	parent.children = append(parent.children[:i], parent.children[i+1:]...)
	if j := child.FindParent(parent); j >= 0 {
		child.parents = append(child.parents[:j], child.parents[j+1:]...)
	}
	if child.users > 0 {
		child.users--
	}

	invalidateCache(parent)
	return true
}

func (l *Library) objectAdd(c *Collection, ob *Object, flags LinkFlag, addUser bool) bool {
	if c.deleted || ob.deleted {
		return false
	}
	if ob.Instance != nil {
		// Cyclic dependency check.
		if ob.Instance == c || findChildRecursive(c, ob.Instance) {
			return false
		}
	}
	if c.findObject(ob) >= 0 {
		return false
	}

	c.objects = append(c.objects, ob)
	invalidateCache(c)

	if addUser && flags&CopyNoUserRefcount == 0 {
		ob.users++
	}
	return true
}

func (l *Library) objectRemove(c *Collection, ob *Object, free bool) bool {
	i := c.findObject(ob)
	if i < 0 {
		return false
	}

	c.objects = append(c.objects[:i], c.objects[i+1:]...)
	invalidateCache(c)

	if free {
		l.freeObjectUser(ob)
	} else {
		l.releaseObject(ob)
	}
	return true
}

// ============================================================================
// Collections
// ============================================================================

// NewCollection allocates a collection and, when parent is given, links it as
// parent's last child. An empty name selects an automatic one (see NewName).
func (l *Library) NewCollection(parent *Collection, name string) *Collection {
	if name == "" {
		name = NewName(parent)
	}
	c := l.allocCollection(name)
	if parent != nil {
		l.childAdd(parent, c, 0, true)
	}
	l.log.Debug("collection added", zap.String("collection", c.Name), zap.Stringer("parent", parent))
	l.sync()
	return c
}

// AddChild links child under parent. It fails when the edge already exists
// or would make child its own ancestor.
func (l *Library) AddChild(parent, child *Collection) bool {
	ok := l.childAdd(parent, child, 0, true)
	observeMutation("add_child", ok)
	if !ok {
		l.log.Debug("child link rejected", zap.Stringer("parent", parent), zap.Stringer("child", child))
		return false
	}
	l.sync()
	return true
}

// RemoveChild unlinks child from parent. It fails when no such edge exists.
func (l *Library) RemoveChild(parent, child *Collection) bool {
	ok := l.childRemove(parent, child)
	observeMutation("remove_child", ok)
	if !ok {
		return false
	}
	l.sync()
	return true
}

// Delete removes c from the library.
//
// With hierarchy set, c's objects are released and its child collections are
// deleted recursively first. Otherwise every child collection and every
// object is linked into each of c's parents before c goes away, so content is
// promoted (and duplicated across parents when c has several).
//
// Master collections cannot be deleted, and deleting twice is refused.
func (l *Library) Delete(c *Collection, hierarchy bool) bool {
	if c == nil {
		return false
	}
	if c.deleted {
		observeMutation("delete", false)
		return false
	}
	if c.IsMaster() {
		l.log.DPanic("master collection cannot be deleted", zap.String("collection", c.Name))
		observeMutation("delete", false)
		return false
	}

	l.deleteCollection(c, hierarchy)
	observeMutation("delete", true)
	l.log.Debug("collection deleted", zap.String("collection", c.Name), zap.Bool("hierarchy", hierarchy))
	l.sync()
	return true
}

func (l *Library) deleteCollection(c *Collection, hierarchy bool) {
	if hierarchy {
		for len(c.objects) > 0 {
			ob := c.objects[0]
			if ob == nil {
				c.objects = c.objects[1:]
				continue
			}
			l.objectRemove(c, ob, true)
		}
		for len(c.children) > 0 {
			child := c.children[0]
			if child == nil {
				c.children = c.children[1:]
				continue
			}
			l.deleteCollection(child, true)
		}
	} else {
		parents := c.Parents()
		for _, child := range c.Children() {
			if child == nil {
				continue
			}
			for _, p := range parents {
				if p != nil {
					l.childAdd(p, child, 0, true)
				}
			}
		}
		for len(c.objects) > 0 {
			ob := c.objects[0]
			if ob == nil {
				c.objects = c.objects[1:]
				continue
			}
			for _, p := range parents {
				if p != nil {
					l.objectAdd(p, ob, 0, true)
				}
			}
			l.objectRemove(c, ob, true)
		}
	}

	l.unlink(c)
}

// unlink detaches c from every parent and child and drops it from the library.
func (l *Library) unlink(c *Collection) {
	for len(c.parents) > 0 {
		p := c.parents[0]
		if p == nil || !l.childRemove(p, c) {
			// back-edge without a forward edge
			c.parents = c.parents[1:]
		}
	}
	for len(c.children) > 0 {
		child := c.children[0]
		if child == nil || !l.childRemove(c, child) {
			c.children = c.children[1:]
		}
	}
	for _, ob := range c.objects {
		if ob != nil {
			l.releaseObject(ob)
		}
	}
	c.objects = nil
	invalidateCache(c)
	l.forget(c)
}

// Copy duplicates c: the copy gets fresh child and object edges to the same
// children and objects (objects are shared, edges are not). When parent is
// given the copy is linked into it right after c, or last if c is not one of
// parent's children.
//
// Master collections cannot be copied; use CopyMaster.
func (l *Library) Copy(parent, c *Collection) *Collection {
	if c == nil || c.deleted {
		return nil
	}
	if c.IsMaster() {
		l.log.DPanic("master collection cannot be copied", zap.String("collection", c.Name))
		observeMutation("copy", false)
		return nil
	}

	dup := l.allocCollection(c.Name)
	dup.flag = c.flag & RestrictMask
	l.copyLinks(dup, c, 0)

	if parent != nil && l.childAdd(parent, dup, 0, true) {
		// Put the copy right after the original.
		if parent.FindChild(c) >= 0 {
			l.reposition(parent, dup, c, true)
		}
	}

	observeMutation("copy", true)
	l.log.Debug("collection copied", zap.String("collection", c.Name), zap.String("copy", dup.Name))
	l.sync()
	return dup
}

// CopyMaster makes a private duplicate of a scene master collection. The copy
// is not registered in the library. With CopyNoMain the children of the copy
// do not list it as a parent.
func (l *Library) CopyMaster(c *Collection, flags LinkFlag) *Collection {
	if c == nil || !c.IsMaster() {
		l.log.DPanic("CopyMaster expects a master collection", zap.Stringer("collection", c))
		return nil
	}
	dup := &Collection{
		ID:   CollectionID(uuid.NewString()),
		Name: c.Name,
		flag: c.flag,
	}
	l.copyLinks(dup, c, flags)
	return dup
}

func (l *Library) copyLinks(dst, src *Collection, flags LinkFlag) {
	for _, child := range src.children {
		if child != nil {
			l.childAdd(dst, child, flags, true)
		}
	}
	for _, ob := range src.objects {
		if ob != nil {
			l.objectAdd(dst, ob, flags, true)
		}
	}
}

// reposition moves child next to anchor within parent's child list. It does
// nothing and returns false when either is missing.
func (l *Library) reposition(parent, child, anchor *Collection, after bool) bool {
	if child == anchor {
		return false
	}
	i := parent.FindChild(child)
	if i < 0 || parent.FindChild(anchor) < 0 {
		return false
	}
	parent.children = append(parent.children[:i], parent.children[i+1:]...)

	j := parent.FindChild(anchor)
	if after {
		j++
	}
	parent.children = append(parent.children, nil)
	copy(parent.children[j+1:], parent.children[j:])
	parent.children[j] = child
	return true
}

// Move re-parents c from fromParent (optional) to toParent and, when relative
// is given and is one of toParent's children, places c before or after it.
//
// Master, deleted and cycle-creating moves are refused before any edge
// changes. A relative anchor that toParent does not contain leaves
// the order alone; the move itself still succeeds.
func (l *Library) Move(toParent, fromParent, relative *Collection, relativeAfter bool, c *Collection) bool {
	if toParent == nil || c == nil {
		return false
	}
	if c.IsMaster() || c.deleted || toParent.deleted {
		observeMutation("move", false)
		return false
	}
	if FindCycle(toParent, c) {
		observeMutation("move", false)
		l.log.Debug("move rejected: cycle", zap.String("collection", c.Name), zap.String("to", toParent.Name))
		return false
	}

	if fromParent != nil {
		l.childRemove(fromParent, c)
	}
	l.childAdd(toParent, c, 0, true)

	if relative != nil {
		if l.reposition(toParent, c, relative, relativeAfter) {
			invalidateCache(toParent)
		}
	}

	observeMutation("move", true)
	l.sync()
	return true
}

// ============================================================================
// Objects
// ============================================================================

// AddObject makes ob a direct member of c. It fails when ob is already a
// member or when ob instances a collection that c contains (or is).
func (l *Library) AddObject(c *Collection, ob *Object) bool {
	if c == nil || ob == nil {
		return false
	}
	ok := l.objectAdd(c, ob, 0, true)
	observeMutation("add_object", ok)
	if !ok {
		l.log.Debug("object link rejected", zap.String("collection", c.Name), zap.String("object", ob.Name))
		return false
	}
	if c.IsInScene() {
		l.sync()
	}
	return true
}

// RemoveObject drops ob from c. With free set, an object left without users
// is released from the library; otherwise only its user count drops.
func (l *Library) RemoveObject(c *Collection, ob *Object, free bool) bool {
	if c == nil || ob == nil {
		return false
	}
	ok := l.objectRemove(c, ob, free)
	observeMutation("remove_object", ok)
	if !ok {
		return false
	}
	if c.IsInScene() {
		l.sync()
	}
	return true
}

// AddObjectFrom adds dst to every collection of the scene that contains src.
func (l *Library) AddObjectFrom(s *Scene, src, dst *Object) {
	if s == nil || src == nil || dst == nil {
		return
	}
	for c := range s.AllCollections() {
		if c.HasObject(src) {
			l.objectAdd(c, dst, 0, true)
		}
	}
	l.sync()
}

// RemoveObjectFromScene removes ob from every collection of the scene and
// reports whether any membership was dropped.
func (l *Library) RemoveObjectFromScene(s *Scene, ob *Object, free bool) bool {
	removed := l.removeObjectFromScene(s, ob, free, nil)
	l.sync()
	return removed
}

func (l *Library) removeObjectFromScene(s *Scene, ob *Object, free bool, skip *Collection) bool {
	if s == nil || ob == nil {
		return false
	}
	removed := false
	for c := range s.AllCollections() {
		if c != skip {
			removed = l.objectRemove(c, ob, free) || removed
		}
	}
	return removed
}

// MoveObject moves ob into dst. The object is added first so it never drops
// out of the scene; it is then removed from src, or from every other scene
// collection when src is nil.
func (l *Library) MoveObject(s *Scene, dst, src *Collection, ob *Object) {
	if src != nil {
		if l.AddObject(dst, ob) {
			l.RemoveObject(src, ob, false)
		}
		return
	}
	// Adding fails if ob is already in dst; it still leaves the others.
	l.AddObject(dst, ob)
	l.removeObjectFromScene(s, ob, false, dst)
	l.sync()
}

// SetFlag sets restriction bits on c. Master and cache bits cannot be set.
func (l *Library) SetFlag(c *Collection, f Flag) {
	if c == nil || f&RestrictMask == 0 {
		return
	}
	c.flag |= f & RestrictMask
	invalidateCache(c)
	l.sync()
}

// ClearFlag clears restriction bits on c.
func (l *Library) ClearFlag(c *Collection, f Flag) {
	if c == nil || f&RestrictMask == 0 {
		return
	}
	c.flag &^= f & RestrictMask
	invalidateCache(c)
	l.sync()
}
