package collection

import (
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Library owns every collection and object of a graph together with the scenes
// that root them. It plays the allocation role: it hands out identities, keeps
// user counts and releases objects that lose their last membership.
//
// Master collections belong to their Scene and are not listed in Collections.
type Library struct {
	collections []*Collection
	byID        map[CollectionID]*Collection

	objects    []*Object
	objectByID map[ObjectID]*Object

	scenes []*Scene

	log         *zap.Logger
	syncer      Syncer
	warmWorkers int
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger used for mutation tracing and invariant breaches.
func WithLogger(log *zap.Logger) Option {
	return func(l *Library) {
		if log != nil {
			l.log = log
		}
	}
}

// WithSyncer sets the view-layer synchronization collaborator.
func WithSyncer(s Syncer) Option {
	return func(l *Library) {
		if s != nil {
			l.syncer = s
		}
	}
}

// WithWarmWorkers bounds the goroutines used by WarmCaches.
// Values <= 0 select runtime.GOMAXPROCS(0).
func WithWarmWorkers(n int) Option {
	return func(l *Library) {
		l.warmWorkers = n
	}
}

// NewLibrary creates an empty library.
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		byID:       make(map[CollectionID]*Collection),
		objectByID: make(map[ObjectID]*Object),
		log:        zap.NewNop(),
		syncer:     SyncFunc(func() {}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.warmWorkers <= 0 {
		l.warmWorkers = runtime.GOMAXPROCS(0)
	}
	return l
}

// Logger returns the library logger.
func (l *Library) Logger() *zap.Logger { return l.log }

// NewScene creates a scene with a fresh master collection.
func (l *Library) NewScene(name string) *Scene {
	master := &Collection{
		ID:   CollectionID(uuid.NewString()),
		Name: "Master Collection",
		flag: FlagMaster,
	}
	s := &Scene{Name: name, Master: master}
	l.scenes = append(l.scenes, s)
	return s
}

// Scenes returns the scenes in creation order.
func (l *Library) Scenes() []*Scene {
	return append([]*Scene(nil), l.scenes...)
}

// NewObject allocates an object with no users.
func (l *Library) NewObject(name string) *Object {
	ob := &Object{ID: ObjectID(uuid.NewString()), Name: name}
	l.registerObject(ob)
	return ob
}

// Objects returns all live objects in creation order.
func (l *Library) Objects() []*Object {
	return append([]*Object(nil), l.objects...)
}

// Collections returns all non-master collections in creation order.
func (l *Library) Collections() []*Collection {
	return append([]*Collection(nil), l.collections...)
}

// Collection looks up a collection by ID, including scene masters.
func (l *Library) Collection(id CollectionID) *Collection {
	if c, ok := l.byID[id]; ok {
		return c
	}
	for _, s := range l.scenes {
		if s.Master != nil && s.Master.ID == id {
			return s.Master
		}
	}
	return nil
}

// CollectionByName returns the first non-master collection named name.
func (l *Library) CollectionByName(name string) *Collection {
	for _, c := range l.collections {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Object looks up an object by ID.
func (l *Library) Object(id ObjectID) *Object {
	return l.objectByID[id]
}

// ObjectByName returns the first object named name.
func (l *Library) ObjectByName(name string) *Object {
	for _, ob := range l.objects {
		if ob.Name == name {
			return ob
		}
	}
	return nil
}

func (l *Library) allocCollection(name string) *Collection {
	c := &Collection{
		ID:   CollectionID(uuid.NewString()),
		Name: l.uniqueName(name),
	}
	l.registerCollection(c)
	return c
}

func (l *Library) registerCollection(c *Collection) {
	l.collections = append(l.collections, c)
	l.byID[c.ID] = c
}

func (l *Library) registerObject(ob *Object) {
	l.objects = append(l.objects, ob)
	l.objectByID[ob.ID] = ob
}

// forget drops c from the library index. Edges must already be gone.
func (l *Library) forget(c *Collection) {
	c.deleted = true
	delete(l.byID, c.ID)
	for i, other := range l.collections {
		if other == c {
			l.collections = append(l.collections[:i], l.collections[i+1:]...)
			break
		}
	}
	for _, ob := range l.objects {
		if ob.Instance == c {
			ob.Instance = nil
		}
	}
}

// releaseObject drops one user from ob without freeing it.
func (l *Library) releaseObject(ob *Object) {
	if ob.users <= 0 {
		l.log.Warn("object user count underflow", zap.String("object", ob.Name))
		ob.users = 0
		return
	}
	ob.users--
}

// freeObjectUser drops one user from ob and frees it once nothing holds it.
func (l *Library) freeObjectUser(ob *Object) {
	l.releaseObject(ob)
	if ob.users > 0 {
		return
	}
	if _, ok := l.objectByID[ob.ID]; !ok {
		return
	}
	ob.deleted = true
	delete(l.objectByID, ob.ID)
	for i, other := range l.objects {
		if other == ob {
			l.objects = append(l.objects[:i], l.objects[i+1:]...)
			break
		}
	}
	l.log.Debug("object freed", zap.String("object", ob.Name))
}

func (l *Library) sync() {
	l.syncer.SyncAll()
}
