package collection

// FindCycle reports whether making newAncestor a parent of c would close a
// cycle, that is, whether c already appears among newAncestor and its
// ancestors. The walk follows parent back-edges.
func FindCycle(newAncestor, c *Collection) bool {
	if newAncestor == nil || c == nil {
		return false
	}
	visited := make(map[*Collection]struct{})
	stack := []*Collection{newAncestor}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == c {
			return true
		}
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		for _, p := range cur.parents {
			if p != nil {
				stack = append(stack, p)
			}
		}
	}
	return false
}

// findChildRecursive reports whether target sits anywhere below parent.
func findChildRecursive(parent, target *Collection) bool {
	visited := make(map[*Collection]struct{})
	stack := []*Collection{parent}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		for _, child := range cur.children {
			if child == nil {
				continue
			}
			if child == target {
				return true
			}
			stack = append(stack, child)
		}
	}
	return false
}

// ObjectCyclicCheck reports whether placing ob inside c would make an
// instanced collection contain itself, following object instancing through
// every flattened object list on the way.
func ObjectCyclicCheck(ob *Object, c *Collection) bool {
	if ob == nil {
		return false
	}
	return objectCyclicCheck(ob, c, make(map[*Collection]struct{}))
}

func objectCyclicCheck(ob *Object, c *Collection, onPath map[*Collection]struct{}) bool {
	inst := ob.Instance
	if inst == nil {
		return false
	}
	if _, ok := onPath[inst]; ok {
		return true
	}
	if inst == c {
		return true
	}
	onPath[inst] = struct{}{}
	for _, base := range inst.Flattened() {
		if objectCyclicCheck(base.Object, inst, onPath) {
			return true
		}
	}
	// the same instance may appear in parallel branches
	delete(onPath, inst)
	return false
}
