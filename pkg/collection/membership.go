package collection

// FindChild returns the position of target in c's child list, or -1.
func (c *Collection) FindChild(target *Collection) int {
	if c == nil || target == nil {
		return -1
	}
	for i, child := range c.children {
		if child == target {
			return i
		}
	}
	return -1
}

// FindParent returns the position of target in c's parent set, or -1.
func (c *Collection) FindParent(target *Collection) int {
	if c == nil || target == nil {
		return -1
	}
	for i, parent := range c.parents {
		if parent == target {
			return i
		}
	}
	return -1
}

func (c *Collection) findObject(ob *Object) int {
	for i, member := range c.objects {
		if member == ob {
			return i
		}
	}
	return -1
}

// HasObject reports direct membership of ob in c.
func (c *Collection) HasObject(ob *Object) bool {
	if c == nil || ob == nil {
		return false
	}
	return c.findObject(ob) >= 0
}

// HasObjectRecursive reports whether ob is reachable from c through its
// children. It reads (and fills if needed) the flattened object cache.
func (c *Collection) HasObjectRecursive(ob *Object) bool {
	if c == nil || ob == nil {
		return false
	}
	for _, base := range c.Flattened() {
		if base.Object == ob {
			return true
		}
	}
	return false
}

// IsInScene reports whether c is a master collection or descends from one.
func (c *Collection) IsInScene() bool {
	if c == nil {
		return false
	}
	visited := make(map[*Collection]struct{})
	stack := []*Collection{c}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		if cur.IsMaster() {
			return true
		}
		for _, p := range cur.parents {
			if p != nil {
				stack = append(stack, p)
			}
		}
	}
	return false
}

// IsAnimated reports whether any object reachable from c is a proxy.
func (c *Collection) IsAnimated() bool {
	for _, base := range c.Flattened() {
		if base.Object.Proxy {
			return true
		}
	}
	return false
}

// ObjectFind returns the next library collection after `after` (in creation
// order) that directly contains ob. A nil after starts from the beginning.
func (l *Library) ObjectFind(after *Collection, ob *Object) *Collection {
	start := 0
	if after != nil {
		start = -1
		for i, c := range l.collections {
			if c == after {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil
		}
	}
	for _, c := range l.collections[start:] {
		if c.HasObject(ob) {
			return c
		}
	}
	return nil
}
