// Package storage persists scene graphs as snapshots.
//
// A Snapshot is a flat, ID-addressed copy of a collection.Library: every
// scene, every collection (masters included) and every object, with edges
// written as ID lists in their original order. Snapshots are sealed with a
// BLAKE2b digest that is checked again on load.
//
// Example Usage:
//
//	engine, err := storage.NewBadgerEngine("./data/scenes")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	snap, err := storage.Capture(lib)
//	if err != nil {
//		return err
//	}
//	if err := engine.Save(ctx, snap); err != nil {
//		return err
//	}
//
//	loaded, _ := engine.Load(ctx)
//	lib, stats, err := storage.Restore(loaded, collection.WithLogger(logger))
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidData   = errors.New("invalid data")
	ErrCorrupted     = errors.New("snapshot digest mismatch")
	ErrStorageClosed = errors.New("storage closed")
)

// SceneRecord is a persisted scene. Master is the ID of its master
// collection, stored among the collection records.
type SceneRecord struct {
	Seq    int    `json:"seq"`
	Name   string `json:"name"`
	Master string `json:"master"`
}

// CollectionRecord is a persisted collection. Children and Objects keep list
// order; Parents is written as found.
type CollectionRecord struct {
	Seq      int      `json:"seq"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Flags    uint32   `json:"flags"`
	Users    int      `json:"users"`
	Master   bool     `json:"master,omitempty"`
	Children []string `json:"children,omitempty"`
	Parents  []string `json:"parents,omitempty"`
	Objects  []string `json:"objects,omitempty"`
}

// ObjectRecord is a persisted object.
type ObjectRecord struct {
	Seq      int    `json:"seq"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Users    int    `json:"users"`
	Instance string `json:"instance,omitempty"`
	Proxy    bool   `json:"proxy,omitempty"`
}

// Snapshot is the unit of persistence.
type Snapshot struct {
	Scenes      []SceneRecord      `json:"scenes"`
	Collections []CollectionRecord `json:"collections"`
	Objects     []ObjectRecord     `json:"objects"`

	// Digest is the BLAKE2b-256 sum of the records; see Seal.
	Digest []byte `json:"-"`
}

// Engine stores one snapshot at a time.
type Engine interface {
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap *Snapshot) error
	// Load returns the stored snapshot, ErrNotFound if none was saved yet,
	// or ErrCorrupted if its digest does not match.
	Load(ctx context.Context) (*Snapshot, error)
	Close() error
}

// ComputeDigest hashes the records in their current order. A nil list and an
// empty one hash the same.
func (s *Snapshot) ComputeDigest() ([]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(h)
	encode := func(section byte, n int, rec func(i int) any) error {
		h.Write([]byte{section})
		for i := 0; i < n; i++ {
			if err := enc.Encode(rec(i)); err != nil {
				return fmt.Errorf("encoding snapshot: %w", err)
			}
		}
		return nil
	}
	if err := encode(prefixScene, len(s.Scenes), func(i int) any { return s.Scenes[i] }); err != nil {
		return nil, err
	}
	if err := encode(prefixCollection, len(s.Collections), func(i int) any { return s.Collections[i] }); err != nil {
		return nil, err
	}
	if err := encode(prefixObject, len(s.Objects), func(i int) any { return s.Objects[i] }); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Seal stores the digest of the current records in s.Digest.
func (s *Snapshot) Seal() error {
	digest, err := s.ComputeDigest()
	if err != nil {
		return err
	}
	s.Digest = digest
	return nil
}

// VerifyDigest checks s.Digest against the records. An unsealed snapshot
// (empty digest) is accepted.
func (s *Snapshot) VerifyDigest() error {
	if len(s.Digest) == 0 {
		return nil
	}
	digest, err := s.ComputeDigest()
	if err != nil {
		return err
	}
	if string(digest) != string(s.Digest) {
		return ErrCorrupted
	}
	return nil
}

// prepare validates snap and returns a renumbered, freshly sealed copy for
// storing. A snapshot that carries a digest must still match it.
func prepare(snap *Snapshot) (*Snapshot, error) {
	if snap == nil {
		return nil, ErrInvalidData
	}
	if err := snap.VerifyDigest(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(snap.Collections)+len(snap.Objects))
	check := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%w: %s with empty id", ErrInvalidData, kind)
		}
		if _, ok := seen[kind+id]; ok {
			return fmt.Errorf("%w: duplicate %s id %q", ErrInvalidData, kind, id)
		}
		seen[kind+id] = struct{}{}
		return nil
	}

	out := snap.Clone()
	for i := range out.Scenes {
		out.Scenes[i].Seq = i
	}
	for i := range out.Collections {
		if err := check("collection", out.Collections[i].ID); err != nil {
			return nil, err
		}
		out.Collections[i].Seq = i
	}
	for i := range out.Objects {
		if err := check("object", out.Objects[i].ID); err != nil {
			return nil, err
		}
		out.Objects[i].Seq = i
	}
	if err := out.Seal(); err != nil {
		return nil, err
	}
	return out, nil
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Scenes:      append([]SceneRecord(nil), s.Scenes...),
		Collections: make([]CollectionRecord, len(s.Collections)),
		Objects:     append([]ObjectRecord(nil), s.Objects...),
		Digest:      append([]byte(nil), s.Digest...),
	}
	for i, c := range s.Collections {
		c.Children = append([]string(nil), c.Children...)
		c.Parents = append([]string(nil), c.Parents...)
		c.Objects = append([]string(nil), c.Objects...)
		out.Collections[i] = c
	}
	return out
}
