package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/scenegraph/pkg/collection"
)

// Manifest describes a library in YAML.
//
//	scenes:
//	  - name: Scene
//	    objects: [Camera]
//	    collections:
//	      - name: Props
//	        flags: [hide_render]
//	        objects: [Chair]
//	        children:
//	          - name: Shared
//	      - name: Lights
//	        children:
//	          - ref: Shared
//	collections:
//	  - name: Library
//	objects:
//	  - name: Chair
//	    instance: Library
//	links:
//	  - parent: Shared
//	    child: Props
//
// Collections are defined once by name and may be linked elsewhere with ref.
// Objects are created on first mention; the objects section only adds
// attributes.
type Manifest struct {
	Scenes      []SceneDef      `yaml:"scenes"`
	Collections []CollectionDef `yaml:"collections"`
	Objects     []ObjectDef     `yaml:"objects"`
	Links       []LinkDef       `yaml:"links"`
}

// SceneDef lists the master collection's objects and children.
type SceneDef struct {
	Name        string          `yaml:"name"`
	Objects     []string        `yaml:"objects"`
	Collections []CollectionDef `yaml:"collections"`
}

// CollectionDef defines a collection (Name) or links an existing one (Ref).
type CollectionDef struct {
	Name     string          `yaml:"name"`
	Ref      string          `yaml:"ref"`
	Flags    []string        `yaml:"flags"`
	Objects  []string        `yaml:"objects"`
	Children []CollectionDef `yaml:"children"`
}

// ObjectDef sets object attributes.
type ObjectDef struct {
	Name     string `yaml:"name"`
	Instance string `yaml:"instance"`
	Proxy    bool   `yaml:"proxy"`
}

// LinkDef adds a child edge between two named collections.
type LinkDef struct {
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
}

// BuildReport lists the edits the mutation engine refused.
type BuildReport struct {
	Rejected []string
}

var flagNames = map[string]collection.Flag{
	"hide_viewport": collection.RestrictView,
	"hide_select":   collection.RestrictSelect,
	"hide_render":   collection.RestrictRender,
}

func flagString(f collection.Flag) string {
	out := ""
	for _, name := range []string{"hide_viewport", "hide_select", "hide_render"} {
		if f&flagNames[name] != 0 {
			if out != "" {
				out += ","
			}
			out += name
		}
	}
	return out
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// manifestBuilder applies a manifest through the mutation engine: create all
// named collections, link children in manifest order, attach instances and
// finally add objects, so that the cycle guard sees the complete hierarchy.
type manifestBuilder struct {
	lib     *collection.Library
	byName  map[string]*collection.Collection
	objects map[string]*collection.Object
	report  BuildReport
}

// Build creates a library from m. Structural problems in the manifest
// (unknown names, duplicate definitions) are errors; edits the library
// refuses, such as edges that would close a cycle, are reported.
func Build(m *Manifest, opts ...collection.Option) (*collection.Library, BuildReport, error) {
	b := &manifestBuilder{
		lib:     collection.NewLibrary(opts...),
		byName:  make(map[string]*collection.Collection),
		objects: make(map[string]*collection.Object),
	}

	scenes := make([]*collection.Scene, len(m.Scenes))
	for i, s := range m.Scenes {
		scenes[i] = b.lib.NewScene(s.Name)
		if err := b.define(s.Collections); err != nil {
			return nil, b.report, err
		}
	}
	if err := b.define(m.Collections); err != nil {
		return nil, b.report, err
	}

	for i, s := range m.Scenes {
		if err := b.link(scenes[i].Master, s.Collections); err != nil {
			return nil, b.report, err
		}
	}
	if err := b.link(nil, m.Collections); err != nil {
		return nil, b.report, err
	}
	for _, l := range m.Links {
		parent, child := b.byName[l.Parent], b.byName[l.Child]
		if parent == nil || child == nil {
			return nil, b.report, fmt.Errorf("link %s -> %s: unknown collection", l.Parent, l.Child)
		}
		if !b.lib.AddChild(parent, child) {
			b.reject("link %s -> %s", l.Parent, l.Child)
		}
	}

	for _, def := range m.Objects {
		ob := b.object(def.Name)
		ob.Proxy = def.Proxy
		if def.Instance == "" {
			continue
		}
		inst := b.byName[def.Instance]
		if inst == nil {
			return nil, b.report, fmt.Errorf("object %s: unknown instance collection %q", def.Name, def.Instance)
		}
		ob.Instance = inst
	}

	for i, s := range m.Scenes {
		b.addObjects(scenes[i].Master, s.Objects)
		b.fill(s.Collections)
	}
	b.fill(m.Collections)

	return b.lib, b.report, nil
}

func (b *manifestBuilder) reject(format string, args ...any) {
	b.report.Rejected = append(b.report.Rejected, fmt.Sprintf(format, args...))
}

func (b *manifestBuilder) define(defs []CollectionDef) error {
	for _, def := range defs {
		switch {
		case def.Name != "" && def.Ref != "":
			return fmt.Errorf("collection %q: name and ref are exclusive", def.Name)
		case def.Ref != "":
			if len(def.Flags)+len(def.Objects)+len(def.Children) > 0 {
				return fmt.Errorf("ref %q: a reference cannot carry content", def.Ref)
			}
			continue
		case def.Name == "":
			return fmt.Errorf("collection without name or ref")
		}
		if _, dup := b.byName[def.Name]; dup {
			return fmt.Errorf("collection %q defined twice", def.Name)
		}

		c := b.lib.NewCollection(nil, def.Name)
		if c.Name != def.Name {
			return fmt.Errorf("collection %q: name is not usable (stored as %q)", def.Name, c.Name)
		}
		for _, name := range def.Flags {
			f, ok := flagNames[name]
			if !ok {
				return fmt.Errorf("collection %q: unknown flag %q", def.Name, name)
			}
			b.lib.SetFlag(c, f)
		}
		b.byName[def.Name] = c

		if err := b.define(def.Children); err != nil {
			return err
		}
	}
	return nil
}

func (b *manifestBuilder) link(parent *collection.Collection, defs []CollectionDef) error {
	for _, def := range defs {
		name := def.Name
		if def.Ref != "" {
			name = def.Ref
		}
		c := b.byName[name]
		if c == nil {
			return fmt.Errorf("ref %q: unknown collection", name)
		}
		if parent != nil && !b.lib.AddChild(parent, c) {
			b.reject("child %s -> %s", parent.Name, name)
		}
		if def.Ref == "" {
			if err := b.link(c, def.Children); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *manifestBuilder) fill(defs []CollectionDef) {
	for _, def := range defs {
		if def.Ref != "" {
			continue
		}
		c := b.byName[def.Name]
		b.addObjects(c, def.Objects)
		b.fill(def.Children)
	}
}

func (b *manifestBuilder) addObjects(c *collection.Collection, names []string) {
	for _, name := range names {
		if !b.lib.AddObject(c, b.object(name)) {
			b.reject("object %s in %s", name, c.Name)
		}
	}
}

func (b *manifestBuilder) object(name string) *collection.Object {
	if ob, ok := b.objects[name]; ok {
		return ob
	}
	ob := b.lib.NewObject(name)
	b.objects[name] = ob
	return ob
}
