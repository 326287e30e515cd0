package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sharedScene builds
//
//	Master (O1)
//	├── A (O2, O1)
//	│   └── C (O3)
//	└── B (O2, O4)
//	    └── C
func sharedScene(t *testing.T) (*Library, *Scene, map[string]*Collection, map[string]*Object) {
	t.Helper()
	lib, scene, _ := newTestLibrary(t)
	m := scene.Master
	a := lib.NewCollection(m, "A")
	b := lib.NewCollection(m, "B")
	c := lib.NewCollection(a, "C")
	require.True(t, lib.AddChild(b, c))

	obs := map[string]*Object{}
	for _, name := range []string{"O1", "O2", "O3", "O4"} {
		obs[name] = lib.NewObject(name)
	}
	require.True(t, lib.AddObject(m, obs["O1"]))
	require.True(t, lib.AddObject(a, obs["O2"]))
	require.True(t, lib.AddObject(a, obs["O1"]))
	require.True(t, lib.AddObject(c, obs["O3"]))
	require.True(t, lib.AddObject(b, obs["O2"]))
	require.True(t, lib.AddObject(b, obs["O4"]))

	return lib, scene, map[string]*Collection{"A": a, "B": b, "C": c}, obs
}

func TestCollectionIterator(t *testing.T) {
	_, scene, cols, _ := sharedScene(t)

	it := NewCollectionIterator(scene)
	defer it.End()

	var got []*Collection
	for ; it.Valid(); it.Next() {
		got = append(got, it.Current())
	}
	assert.Equal(t, []*Collection{scene.Master, cols["A"], cols["C"], cols["B"]}, got,
		"depth-first, children before siblings, shared collections once")
	assert.Equal(t, 4, it.Len())
}

func TestCollectionIteratorEnd(t *testing.T) {
	_, scene, _, _ := sharedScene(t)

	it := NewCollectionIterator(scene)
	require.True(t, it.Valid())
	it.End()

	assert.False(t, it.Valid())
	assert.Nil(t, it.Current())
	it.Next()
	it.End()
	assert.False(t, it.Valid())
}

func TestCollectionIteratorNilScene(t *testing.T) {
	it := NewCollectionIterator(nil)
	defer it.End()
	assert.False(t, it.Valid())
	assert.Equal(t, 0, it.Len())
}

func TestObjectIterator(t *testing.T) {
	_, scene, _, obs := sharedScene(t)

	it := NewObjectIterator(scene)
	defer it.End()

	var got []*Object
	for ; it.Valid(); it.Next() {
		got = append(got, it.Current())
	}
	assert.Equal(t, []string{"O1", "O2", "O3", "O4"}, objectNames(got))
	assert.Same(t, obs["O1"], got[0])
}

func TestObjectIteratorSkipsEmptyCollections(t *testing.T) {
	lib, scene, _ := newTestLibrary(t)
	empty := lib.NewCollection(scene.Master, "Empty")
	lib.NewCollection(empty, "AlsoEmpty")
	full := lib.NewCollection(scene.Master, "Full")
	ob := lib.NewObject("Only")
	require.True(t, lib.AddObject(full, ob))

	it := NewObjectIterator(scene)
	defer it.End()

	require.True(t, it.Valid())
	assert.Same(t, ob, it.Current())
	it.Next()
	assert.False(t, it.Valid())
	assert.Nil(t, it.Current())
}

func TestObjectIteratorEmptyScene(t *testing.T) {
	lib, scene, _ := newTestLibrary(t)
	lib.NewCollection(scene.Master, "Empty")

	it := NewObjectIterator(scene)
	assert.False(t, it.Valid())
	it.End()
	it.End()
	assert.Nil(t, it.Current())
}

func TestSceneSequences(t *testing.T) {
	_, scene, cols, _ := sharedScene(t)

	var names []string
	for c := range scene.AllCollections() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Master Collection", "A", "C", "B"}, names)

	var first []*Object
	for ob := range scene.AllObjects() {
		first = append(first, ob)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"O1", "O2"}, objectNames(first))

	var upTo []*Collection
	for c := range scene.AllCollections() {
		upTo = append(upTo, c)
		if c == cols["A"] {
			break
		}
	}
	assert.Equal(t, []*Collection{scene.Master, cols["A"]}, upTo)
}

func TestFromIndex(t *testing.T) {
	_, scene, cols, _ := sharedScene(t)

	want := []*Collection{scene.Master, cols["A"], cols["C"], cols["B"], cols["C"]}
	for i, c := range want {
		assert.Same(t, c, FromIndex(scene, i), "index %d", i)
	}
	assert.Nil(t, FromIndex(scene, len(want)))
	assert.Nil(t, FromIndex(scene, -1))
	assert.Nil(t, FromIndex(nil, 0))
}
