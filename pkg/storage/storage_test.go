package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/orneryd/scenegraph/pkg/collection"
)

// buildLibrary creates
//
//	Scene
//	└── Master (Camera)
//	    ├── Props [RestrictRender] (Chair, Table)
//	    │   └── Shared (Lamp)
//	    └── Lights (Sun)
//	        └── Shared
//
// plus an orphan "Library" collection instanced by the Chair.
func buildLibrary(t *testing.T) *collection.Library {
	t.Helper()
	lib := collection.NewLibrary()
	scene := lib.NewScene("Scene")
	props := lib.NewCollection(scene.Master, "Props")
	lights := lib.NewCollection(scene.Master, "Lights")
	shared := lib.NewCollection(props, "Shared")
	require.True(t, lib.AddChild(lights, shared))
	lib.SetFlag(props, collection.RestrictRender)
	orphan := lib.NewCollection(nil, "Library")

	add := func(c *collection.Collection, name string) *collection.Object {
		ob := lib.NewObject(name)
		require.True(t, lib.AddObject(c, ob))
		return ob
	}
	add(scene.Master, "Camera")
	chair := add(props, "Chair")
	add(props, "Table")
	add(shared, "Lamp")
	add(lights, "Sun")

	chair.Instance = orphan
	return lib
}

func flattenedNames(c *collection.Collection) []string {
	var out []string
	for _, b := range c.Flattened() {
		out = append(out, b.Object.Name)
	}
	return out
}

func treeNames(s *collection.Scene) []string {
	var out []string
	for c := range s.AllCollections() {
		out = append(out, c.Name)
	}
	return out
}

type engineFactory struct {
	name string
	open func(t *testing.T) Engine
}

func engines() []engineFactory {
	return []engineFactory{
		{"memory", func(t *testing.T) Engine { return NewMemoryEngine() }},
		{"badger", func(t *testing.T) Engine {
			e, err := NewBadgerEngineInMemory()
			require.NoError(t, err)
			return e
		}},
	}
}

// ============================================================================
// Capture / Restore
// ============================================================================

func TestCaptureRestoreRoundTrip(t *testing.T) {
	orig := buildLibrary(t)
	snap, err := Capture(orig)
	require.NoError(t, err)
	require.NotEmpty(t, snap.Digest)

	lib, stats, err := Restore(snap)
	require.NoError(t, err)

	assert.Equal(t, RestoreStats{Scenes: 1, Collections: 4, Objects: 5}, stats)

	origScene, scene := orig.Scenes()[0], lib.Scenes()[0]
	assert.Equal(t, origScene.Name, scene.Name)
	assert.Equal(t, origScene.Master.ID, scene.Master.ID)
	assert.True(t, scene.Master.IsMaster())
	assert.Equal(t, treeNames(origScene), treeNames(scene))
	assert.Equal(t, flattenedNames(origScene.Master), flattenedNames(scene.Master))

	props := lib.CollectionByName("Props")
	require.NotNil(t, props)
	assert.Equal(t, collection.RestrictRender, props.Flags())

	shared := lib.CollectionByName("Shared")
	require.NotNil(t, shared)
	assert.Equal(t, 2, shared.Users())
	assert.Len(t, shared.Parents(), 2)

	chair := lib.ObjectByName("Chair")
	require.NotNil(t, chair)
	assert.Same(t, lib.CollectionByName("Library"), chair.Instance)
	assert.Equal(t, 1, chair.Users())

	assert.NoError(t, lib.Verify())

	again, err := Capture(lib)
	require.NoError(t, err)
	assert.Equal(t, snap.Digest, again.Digest, "restore is lossless")
}

func TestRestoreSweepsUnresolvedReferences(t *testing.T) {
	snap, err := Capture(buildLibrary(t))
	require.NoError(t, err)

	// Drop the Lamp object and the Lights collection record.
	var lampID, lightsID string
	objects := snap.Objects[:0]
	for _, rec := range snap.Objects {
		if rec.Name == "Lamp" {
			lampID = rec.ID
			continue
		}
		objects = append(objects, rec)
	}
	snap.Objects = objects
	cols := snap.Collections[:0]
	for _, rec := range snap.Collections {
		if rec.Name == "Lights" {
			lightsID = rec.ID
			continue
		}
		cols = append(cols, rec)
	}
	snap.Collections = cols
	require.NotEmpty(t, lampID)
	require.NotEmpty(t, lightsID)
	require.NoError(t, snap.Seal())

	lib, stats, err := Restore(snap)
	require.NoError(t, err)

	// Master -> Lights, Shared -> Lights (parent) and Shared -> Lamp.
	assert.Equal(t, 3, stats.Unresolved)
	assert.Equal(t, 1, stats.NullObjects)
	assert.Equal(t, 2, stats.NullLinks)

	shared := lib.CollectionByName("Shared")
	require.NotNil(t, shared)
	assert.Empty(t, shared.Objects())
	assert.Len(t, shared.Parents(), 1)
	assert.Equal(t, []string{"Master Collection", "Props", "Shared"}, treeNames(lib.Scenes()[0]))
	assert.NoError(t, lib.Verify())
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		_, _, err := Restore(nil)
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("tampered", func(t *testing.T) {
		snap, err := Capture(buildLibrary(t))
		require.NoError(t, err)
		snap.Objects[0].Name = "Renamed"

		_, _, err = Restore(snap)
		assert.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("missing master", func(t *testing.T) {
		snap := &Snapshot{Scenes: []SceneRecord{{Name: "Scene", Master: "nope"}}}
		_, _, err := Restore(snap)
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("cycle", func(t *testing.T) {
		snap := &Snapshot{Collections: []CollectionRecord{
			{ID: "a", Name: "A", Children: []string{"b"}, Parents: []string{"b"}},
			{ID: "b", Name: "B", Children: []string{"a"}, Parents: []string{"a"}},
		}}
		_, _, err := Restore(snap)
		assert.ErrorIs(t, err, ErrInvalidData)
	})
}

// ============================================================================
// Engines
// ============================================================================

func TestEngineSaveLoad(t *testing.T) {
	ctx := context.Background()
	for _, f := range engines() {
		t.Run(f.name, func(t *testing.T) {
			engine := f.open(t)
			defer engine.Close()

			_, err := engine.Load(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			snap, err := Capture(buildLibrary(t))
			require.NoError(t, err)
			require.NoError(t, engine.Save(ctx, snap))

			loaded, err := engine.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, snap.Digest, loaded.Digest)
			assert.Equal(t, len(snap.Collections), len(loaded.Collections))
			for i := range snap.Collections {
				assert.Equal(t, snap.Collections[i].ID, loaded.Collections[i].ID, "order preserved")
			}

			lib, _, err := Restore(loaded)
			require.NoError(t, err)
			assert.Equal(t, []string{"Camera", "Chair", "Table", "Lamp", "Sun"}, flattenedNames(lib.Scenes()[0].Master))
		})
	}
}

func TestEngineSaveReplaces(t *testing.T) {
	ctx := context.Background()
	for _, f := range engines() {
		t.Run(f.name, func(t *testing.T) {
			engine := f.open(t)
			defer engine.Close()

			big, err := Capture(buildLibrary(t))
			require.NoError(t, err)
			require.NoError(t, engine.Save(ctx, big))

			small := collection.NewLibrary()
			small.NewCollection(small.NewScene("Only").Master, "Single")
			snap, err := Capture(small)
			require.NoError(t, err)
			require.NoError(t, engine.Save(ctx, snap))

			loaded, err := engine.Load(ctx)
			require.NoError(t, err)
			assert.Len(t, loaded.Scenes, 1)
			assert.Len(t, loaded.Collections, 2)
			assert.Empty(t, loaded.Objects)
		})
	}
}

func TestEngineRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	for _, f := range engines() {
		t.Run(f.name, func(t *testing.T) {
			engine := f.open(t)
			defer engine.Close()

			assert.ErrorIs(t, engine.Save(ctx, nil), ErrInvalidData)

			snap, err := Capture(buildLibrary(t))
			require.NoError(t, err)
			snap.Collections[1].Name = "Tampered"
			assert.ErrorIs(t, engine.Save(ctx, snap), ErrCorrupted)

			dup := &Snapshot{Objects: []ObjectRecord{{ID: "x"}, {ID: "x"}}}
			assert.ErrorIs(t, engine.Save(ctx, dup), ErrInvalidData)

			canceled, cancel := context.WithCancel(ctx)
			cancel()
			assert.ErrorIs(t, engine.Save(canceled, &Snapshot{}), context.Canceled)
			_, err = engine.Load(canceled)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestEngineClosed(t *testing.T) {
	ctx := context.Background()
	for _, f := range engines() {
		t.Run(f.name, func(t *testing.T) {
			engine := f.open(t)
			require.NoError(t, engine.Close())
			require.NoError(t, engine.Close())

			assert.ErrorIs(t, engine.Save(ctx, &Snapshot{}), ErrStorageClosed)
			_, err := engine.Load(ctx)
			assert.ErrorIs(t, err, ErrStorageClosed)
		})
	}
}

func TestMemoryEngineDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	engine := NewMemoryEngine()
	defer engine.Close()

	snap, err := Capture(buildLibrary(t))
	require.NoError(t, err)
	require.NoError(t, engine.Save(ctx, snap))
	snap.Collections[0].Children[0] = "mutated"

	loaded, err := engine.Load(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", loaded.Collections[0].Children[0])
	loaded.Collections[0].Name = "mutated"

	again, err := engine.Load(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Collections[0].Name)
}

func TestBadgerEnginePersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	engine, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	snap, err := Capture(buildLibrary(t))
	require.NoError(t, err)
	require.NoError(t, engine.Save(ctx, snap))
	require.NoError(t, engine.Sync())
	require.NoError(t, engine.Close())

	reopened, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Digest, loaded.Digest)
}

func TestBadgerEngineDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	engine, err := NewBadgerEngineInMemory()
	require.NoError(t, err)
	defer engine.Close()

	snap, err := Capture(buildLibrary(t))
	require.NoError(t, err)
	require.NoError(t, engine.Save(ctx, snap))

	rec := snap.Collections[1]
	rec.Name = "Edited behind our back"
	require.NoError(t, engine.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, collectionKey(rec.ID), rec)
	}))

	_, err = engine.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupted)

	require.NoError(t, engine.db.Update(func(txn *badger.Txn) error {
		return txn.Set(objectKey("garbage"), []byte("{not json"))
	}))
	_, err = engine.Load(ctx)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestBadgerEngineWithZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	engine, err := NewBadgerEngineWithOptions(BadgerOptions{
		InMemory: true,
		Logger:   ZapLogger(zap.New(core)),
	})
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	for _, entry := range logs.All() {
		assert.Equal(t, "badger", entry.LoggerName)
	}
}

func TestBadgerEngineEncrypted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := BadgerOptions{DataDir: dir, Passphrase: "correct horse", KDFIterations: 1000}

	engine, err := NewBadgerEngineWithOptions(opts)
	require.NoError(t, err)
	snap, err := Capture(buildLibrary(t))
	require.NoError(t, err)
	require.NoError(t, engine.Save(ctx, snap))
	require.NoError(t, engine.Close())

	salt, err := os.ReadFile(filepath.Join(dir, saltFile))
	require.NoError(t, err)
	assert.Len(t, salt, saltSize)

	t.Run("same passphrase", func(t *testing.T) {
		reopened, err := NewBadgerEngineWithOptions(opts)
		require.NoError(t, err)
		defer reopened.Close()
		loaded, err := reopened.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, snap.Digest, loaded.Digest)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		wrong := opts
		wrong.Passphrase = "battery staple"
		_, err := NewBadgerEngineWithOptions(wrong)
		assert.Error(t, err)
	})
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef0123456789abcdef")
	a := DeriveKey("secret", salt, 1000)
	assert.Len(t, a, 32)
	assert.Equal(t, a, DeriveKey("secret", salt, 1000))
	assert.NotEqual(t, a, DeriveKey("secret", salt, 1001))
	assert.NotEqual(t, a, DeriveKey("Secret", salt, 1000))
}

func TestLoadOrCreateSalt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	first, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)
	again, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, os.WriteFile(filepath.Join(dir, saltFile), []byte("short"), 0o600))
	_, err = LoadOrCreateSalt(dir)
	assert.ErrorIs(t, err, ErrInvalidData)
}
