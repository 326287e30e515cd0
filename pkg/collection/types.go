// Package collection maintains the scene-graph membership of collections and objects.
//
// A Collection is a grouping node that references objects and child collections.
// Collections form a directed acyclic graph: a collection may have several parents,
// and every child edge is paired with a parent back-edge so that ancestors can be
// found without scanning the whole library.
//
// The package provides:
//   - Membership queries (FindChild, FindParent, HasObject, HasObjectRecursive)
//   - A cycle guard consulted before every new parent/child edge
//   - A lazily computed, deduplicated flattened object cache per collection
//   - Mutations (add/remove/move/copy/delete) that keep the graph acyclic and
//     invalidate every dependent cache
//   - Depth-first iterators over all collections and objects of a scene
//
// Example Usage:
//
//	lib := collection.NewLibrary(collection.WithLogger(logger))
//	scene := lib.NewScene("Scene")
//
//	props := lib.NewCollection(scene.Master, "Props")
//	chair := lib.NewObject("Chair")
//	lib.AddObject(props, chair)
//
//	for _, base := range scene.Master.Flattened() {
//		fmt.Println(base.Object.Name, base.Visible())
//	}
//
// Thread Safety:
//
//	Structural mutations must be serialized by the caller (single editor model).
//	Flattened may be called concurrently from many goroutines while no mutation
//	is running; the first caller fills the cache and the others wait for it.
package collection

import (
	"sync/atomic"
)

// CollectionID identifies a collection within a Library.
type CollectionID string

// ObjectID identifies an object within a Library.
type ObjectID string

// Flag is the per-collection flag set.
type Flag uint32

const (
	// RestrictView hides the collection's objects in the viewport.
	RestrictView Flag = 1 << 0
	// RestrictSelect makes the collection's objects unselectable.
	RestrictSelect Flag = 1 << 1
	// RestrictRender excludes the collection's objects from rendering.
	RestrictRender Flag = 1 << 3
	// FlagMaster marks the root collection owned by a Scene.
	FlagMaster Flag = 1 << 5

	// RestrictMask covers all restriction bits propagated to descendants.
	RestrictMask = RestrictView | RestrictSelect | RestrictRender
)

// BaseFlag holds visibility and selection bits derived for a cached object entry.
type BaseFlag uint32

const (
	BaseSelected BaseFlag = 1 << iota
	BaseVisible
	BaseVisibleViewport
	BaseSelectable
	BaseVisibleRender
)

// Base is one entry of a flattened object cache.
//
// Restrict is the OR of the restriction flags of every collection on the path
// from the cached collection down to the collection that first contributed
// Object. Flags are derived from Restrict when the cache is filled.
type Base struct {
	Object   *Object
	Restrict Flag
	Flags    BaseFlag
}

// Visible reports whether the object is visible in the viewport.
func (b Base) Visible() bool { return b.Flags&BaseVisible != 0 }

// Selectable reports whether the object may be selected.
func (b Base) Selectable() bool { return b.Flags&BaseSelectable != 0 }

// Renderable reports whether the object is included in renders.
func (b Base) Renderable() bool { return b.Flags&BaseVisibleRender != 0 }

func newBase(ob *Object, restrict Flag) Base {
	b := Base{Object: ob, Restrict: restrict}
	if restrict&RestrictView == 0 {
		b.Flags |= BaseVisible | BaseVisibleViewport
		if restrict&RestrictSelect == 0 {
			b.Flags |= BaseSelectable
		}
	}
	if restrict&RestrictRender == 0 {
		b.Flags |= BaseVisibleRender
	}
	return b
}

// Object is a reference-counted scene object.
//
// Every collection membership holds one user. When the last membership is
// removed with the free policy, the Library releases the object.
type Object struct {
	ID   ObjectID
	Name string

	// Instance is the collection this object instances, if any. An object may
	// not be added to a collection that already contains Instance beneath it.
	Instance *Collection

	// Proxy marks objects driven by a linked proxy (treated as animated).
	Proxy bool

	users   int
	deleted bool
}

// Users returns the number of memberships holding this object.
func (o *Object) Users() int { return o.users }

// Collection is a grouping node of the scene graph.
//
// The zero value is not usable; collections are created by a Library.
type Collection struct {
	ID   CollectionID
	Name string

	flag     Flag
	objects  []*Object
	children []*Collection
	parents  []*Collection
	users    int
	deleted  bool

	cacheValid atomic.Bool
	cache      []Base
}

// Flags returns the collection's flag set.
func (c *Collection) Flags() Flag { return c.flag }

// IsMaster reports whether c is the master collection of a scene.
func (c *Collection) IsMaster() bool { return c.flag&FlagMaster != 0 }

// Users returns the number of child edges referencing c.
func (c *Collection) Users() int { return c.users }

// CacheValid reports whether the flattened object cache is currently filled.
func (c *Collection) CacheValid() bool { return c.cacheValid.Load() }

// Objects returns a copy of the direct object list in order.
func (c *Collection) Objects() []*Object {
	return append([]*Object(nil), c.objects...)
}

// Children returns a copy of the direct child list in order.
func (c *Collection) Children() []*Collection {
	return append([]*Collection(nil), c.children...)
}

// Parents returns a copy of the parent back-references. Order carries no meaning.
func (c *Collection) Parents() []*Collection {
	return append([]*Collection(nil), c.parents...)
}

func (c *Collection) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.Name
}

// Scene is a top-level container owning exactly one master collection.
type Scene struct {
	Name   string
	Master *Collection
}

// Syncer is the view-layer synchronization collaborator. SyncAll is invoked
// after every structural mutation that reaches scene-visible state.
type Syncer interface {
	SyncAll()
}

// SyncFunc adapts a plain function to the Syncer interface.
type SyncFunc func()

// SyncAll calls f.
func (f SyncFunc) SyncAll() { f() }

// LinkFlag alters how edges are created when copying.
type LinkFlag uint8

const (
	// CopyNoMain skips the parent back-edge on children of the copy. Used for
	// private copies that must not show up as a parent of shared collections.
	CopyNoMain LinkFlag = 1 << iota
	// CopyNoUserRefcount leaves user counts of children and objects untouched.
	CopyNoUserRefcount
)
