package collection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// syncCounter counts view-layer resyncs.
type syncCounter struct{ n int }

func (s *syncCounter) SyncAll() { s.n++ }

func newTestLibrary(t *testing.T) (*Library, *Scene, *syncCounter) {
	t.Helper()
	sc := &syncCounter{}
	lib := NewLibrary(WithSyncer(sc), WithLogger(zaptest.NewLogger(t)))
	return lib, lib.NewScene("Scene"), sc
}

// identity compares graph nodes by pointer; their fields hold locks and
// back-references that must not be walked.
var identity = cmp.Options{
	cmp.Comparer(func(a, b *Object) bool { return a == b }),
	cmp.Comparer(func(a, b *Collection) bool { return a == b }),
}

func objectsOf(bases []Base) []*Object {
	out := make([]*Object, 0, len(bases))
	for _, b := range bases {
		out = append(out, b.Object)
	}
	return out
}

func objectNames(obs []*Object) []string {
	out := make([]string, 0, len(obs))
	for _, ob := range obs {
		if ob == nil {
			out = append(out, "<nil>")
			continue
		}
		out = append(out, ob.Name)
	}
	return out
}

func collectionNames(cs []*Collection) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.String())
	}
	return out
}
