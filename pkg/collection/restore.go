package collection

// Restore hooks let a persistence layer rebuild a library verbatim. They
// bypass the cycle guard, user counting and view-layer sync: the caller
// supplies lists exactly as they were saved, nil where a reference could not
// be resolved, and runs RemoveNullObjects / RemoveNullLinks afterwards.

// RestoreScene recreates a scene with a master collection of the given identity.
func (l *Library) RestoreScene(name string, masterID CollectionID, masterName string, flags Flag) *Scene {
	master := &Collection{
		ID:   masterID,
		Name: masterName,
		flag: (flags & RestrictMask) | FlagMaster,
	}
	s := &Scene{Name: name, Master: master}
	l.scenes = append(l.scenes, s)
	return s
}

// RestoreCollection recreates a non-master collection. Names are kept as saved.
func (l *Library) RestoreCollection(id CollectionID, name string, flags Flag, users int) *Collection {
	c := &Collection{
		ID:    id,
		Name:  name,
		flag:  flags & RestrictMask,
		users: users,
	}
	l.registerCollection(c)
	return c
}

// RestoreObject recreates an object with its saved user count.
func (l *Library) RestoreObject(id ObjectID, name string, users int, proxy bool) *Object {
	ob := &Object{ID: id, Name: name, Proxy: proxy, users: users}
	l.registerObject(ob)
	return ob
}

// RestoreLinks installs c's child list, parent set and object list as given
// and drops its cache.
func (l *Library) RestoreLinks(c *Collection, children, parents []*Collection, objects []*Object) {
	c.children = append([]*Collection(nil), children...)
	c.parents = append([]*Collection(nil), parents...)
	c.objects = append([]*Object(nil), objects...)
	invalidateCache(c)
}
