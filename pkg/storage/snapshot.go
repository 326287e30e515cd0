package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/orneryd/scenegraph/pkg/collection"
)

// Capture copies lib into a sealed snapshot. Scene masters are stored as
// collection records with Master set; nil list entries are skipped.
func Capture(lib *collection.Library) (*Snapshot, error) {
	snap := &Snapshot{}

	add := func(c *collection.Collection) {
		rec := CollectionRecord{
			Seq:    len(snap.Collections),
			ID:     string(c.ID),
			Name:   c.Name,
			Flags:  uint32(c.Flags() & collection.RestrictMask),
			Users:  c.Users(),
			Master: c.IsMaster(),
		}
		for _, child := range c.Children() {
			if child != nil {
				rec.Children = append(rec.Children, string(child.ID))
			}
		}
		for _, p := range c.Parents() {
			if p != nil {
				rec.Parents = append(rec.Parents, string(p.ID))
			}
		}
		for _, ob := range c.Objects() {
			if ob != nil {
				rec.Objects = append(rec.Objects, string(ob.ID))
			}
		}
		snap.Collections = append(snap.Collections, rec)
	}

	for i, s := range lib.Scenes() {
		snap.Scenes = append(snap.Scenes, SceneRecord{Seq: i, Name: s.Name, Master: string(s.Master.ID)})
		add(s.Master)
	}
	for _, c := range lib.Collections() {
		add(c)
	}
	for i, ob := range lib.Objects() {
		rec := ObjectRecord{
			Seq:   i,
			ID:    string(ob.ID),
			Name:  ob.Name,
			Users: ob.Users(),
			Proxy: ob.Proxy,
		}
		if ob.Instance != nil {
			rec.Instance = string(ob.Instance.ID)
		}
		snap.Objects = append(snap.Objects, rec)
	}

	if err := snap.Seal(); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreStats reports what Restore rebuilt and what it had to drop.
type RestoreStats struct {
	Scenes      int
	Collections int
	Objects     int

	// Unresolved counts references to IDs missing from the snapshot.
	Unresolved int
	// NullObjects and NullLinks count the nil entries swept afterwards.
	NullObjects int
	NullLinks   int
}

// Restore rebuilds a library from snap. References that cannot be resolved
// are installed as nil and then swept by the library cleanup passes, so a
// snapshot missing some records still loads. The result must satisfy
// Library.Verify; otherwise Restore fails with ErrInvalidData.
func Restore(snap *Snapshot, opts ...collection.Option) (*collection.Library, RestoreStats, error) {
	var stats RestoreStats
	if snap == nil {
		return nil, stats, ErrInvalidData
	}
	if err := snap.VerifyDigest(); err != nil {
		return nil, stats, err
	}

	lib := collection.NewLibrary(opts...)
	byID := make(map[string]*collection.Collection, len(snap.Collections))
	records := make(map[string]CollectionRecord, len(snap.Collections))
	for _, rec := range snap.Collections {
		if _, dup := records[rec.ID]; dup || rec.ID == "" {
			return nil, stats, fmt.Errorf("%w: bad collection id %q", ErrInvalidData, rec.ID)
		}
		records[rec.ID] = rec
	}

	for _, s := range snap.Scenes {
		rec, ok := records[s.Master]
		if !ok || !rec.Master {
			return nil, stats, fmt.Errorf("%w: scene %q has no master collection record", ErrInvalidData, s.Name)
		}
		if _, taken := byID[rec.ID]; taken {
			return nil, stats, fmt.Errorf("%w: master %q shared by several scenes", ErrInvalidData, rec.ID)
		}
		scene := lib.RestoreScene(s.Name, collection.CollectionID(rec.ID), rec.Name, collection.Flag(rec.Flags))
		byID[rec.ID] = scene.Master
		stats.Scenes++
	}
	for _, rec := range snap.Collections {
		if rec.Master {
			if _, ok := byID[rec.ID]; !ok {
				return nil, stats, fmt.Errorf("%w: master %q belongs to no scene", ErrInvalidData, rec.ID)
			}
			continue
		}
		byID[rec.ID] = lib.RestoreCollection(collection.CollectionID(rec.ID), rec.Name, collection.Flag(rec.Flags), rec.Users)
		stats.Collections++
	}

	obByID := make(map[string]*collection.Object, len(snap.Objects))
	for _, rec := range snap.Objects {
		if _, dup := obByID[rec.ID]; dup || rec.ID == "" {
			return nil, stats, fmt.Errorf("%w: bad object id %q", ErrInvalidData, rec.ID)
		}
		obByID[rec.ID] = lib.RestoreObject(collection.ObjectID(rec.ID), rec.Name, rec.Users, rec.Proxy)
		stats.Objects++
	}
	for _, rec := range snap.Objects {
		if rec.Instance == "" {
			continue
		}
		inst, ok := byID[rec.Instance]
		if !ok {
			stats.Unresolved++
			continue
		}
		obByID[rec.ID].Instance = inst
	}

	resolve := func(ids []string) []*collection.Collection {
		out := make([]*collection.Collection, len(ids))
		for i, id := range ids {
			if c, ok := byID[id]; ok {
				out[i] = c
			} else {
				stats.Unresolved++
			}
		}
		return out
	}
	for _, rec := range snap.Collections {
		objects := make([]*collection.Object, len(rec.Objects))
		for i, id := range rec.Objects {
			if ob, ok := obByID[id]; ok {
				objects[i] = ob
			} else {
				stats.Unresolved++
			}
		}
		lib.RestoreLinks(byID[rec.ID], resolve(rec.Children), resolve(rec.Parents), objects)
	}

	stats.NullObjects = lib.RemoveNullObjects()
	stats.NullLinks = lib.RemoveNullLinks()

	if err := lib.Verify(); err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	lib.Logger().Info("library restored",
		zap.Int("scenes", stats.Scenes),
		zap.Int("collections", stats.Collections),
		zap.Int("objects", stats.Objects),
		zap.Int("unresolved", stats.Unresolved),
	)
	return lib, stats, nil
}
