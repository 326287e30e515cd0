// Package main provides the scenegraph CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/scenegraph/pkg/collection"
	"github.com/orneryd/scenegraph/pkg/config"
	"github.com/orneryd/scenegraph/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries the state shared by all subcommands of one invocation.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "scenegraph",
		Short: "scenegraph - collection hierarchy manager",
		Long: `scenegraph maintains a library of scenes, collections and objects.

Collections form a directed acyclic graph below each scene's master
collection. The library is stored as a digest-sealed snapshot in BadgerDB;
build creates it from a YAML manifest and the other commands inspect it.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().Bool("in-memory", false, "Keep the snapshot in memory only")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "scenegraph v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "build [manifest.yaml]",
		Short: "Build a library from a manifest and store it",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runBuild,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "tree",
		Short: "Print the collection hierarchy of every scene",
		RunE:  a.runTree,
	})

	flattenCmd := &cobra.Command{
		Use:   "flatten [collection]",
		Short: "Print the flattened objects of a collection",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runFlatten,
	}
	flattenCmd.Flags().String("scene", "", "Use the master collection of this scene")
	rootCmd.AddCommand(flattenCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "objects",
		Short: "List the objects of every scene",
		RunE:  a.runObjects,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Warm every cache and verify the graph invariants",
		RunE:  a.runCheck,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "link [parent] [child]",
		Short: "Add a child collection edge",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runLink,
	})

	deleteCmd := &cobra.Command{
		Use:   "delete [collection]",
		Short: "Delete a collection",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runDelete,
	}
	deleteCmd.Flags().Bool("hierarchy", false, "Also delete all descendant collections")
	rootCmd.AddCommand(deleteCmd)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFromEnvOrFile(path)
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if mem, _ := cmd.Flags().GetBool("in-memory"); mem {
		cfg.Storage.InMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.ApplyPool()

	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	a.log.Debug("configuration loaded", zap.Stringer("config", cfg))
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	if a.cfg.Metrics.Enabled {
		if err := writeMetrics(cmd.ErrOrStderr()); err != nil {
			return err
		}
	}
	_ = a.log.Sync()
	return nil
}

func (a *app) openEngine() (storage.Engine, error) {
	if a.cfg.Storage.InMemory {
		return storage.NewMemoryEngine(), nil
	}
	return storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
		DataDir:    a.cfg.Storage.DataDir,
		SyncWrites: a.cfg.Storage.SyncWrites,
		Logger:     storage.ZapLogger(a.log),
		Passphrase: a.cfg.Storage.Passphrase,
	})
}

func (a *app) libraryOptions() []collection.Option {
	return []collection.Option{
		collection.WithLogger(a.log),
		collection.WithWarmWorkers(a.cfg.Cache.WarmWorkers),
	}
}

// withLibrary loads the stored library, runs fn and, when fn reports a
// change, stores the result again.
func (a *app) withLibrary(ctx context.Context, fn func(lib *collection.Library) (bool, error)) error {
	engine, err := a.openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	snap, err := engine.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no library stored in %s; run build first", a.cfg.Storage.DataDir)
	}
	if err != nil {
		return err
	}
	lib, stats, err := storage.Restore(snap, a.libraryOptions()...)
	if err != nil {
		return err
	}
	if stats.Unresolved > 0 {
		a.log.Warn("snapshot had dangling references",
			zap.Int("unresolved", stats.Unresolved),
			zap.Int("null_objects", stats.NullObjects),
			zap.Int("null_links", stats.NullLinks))
	}

	changed, err := fn(lib)
	if err != nil || !changed {
		return err
	}
	return a.save(ctx, engine, lib)
}

func (a *app) save(ctx context.Context, engine storage.Engine, lib *collection.Library) error {
	snap, err := storage.Capture(lib)
	if err != nil {
		return err
	}
	if err := engine.Save(ctx, snap); err != nil {
		return fmt.Errorf("saving library: %w", err)
	}
	a.log.Info("library saved",
		zap.Int("scenes", len(snap.Scenes)),
		zap.Int("collections", len(snap.Collections)),
		zap.Int("objects", len(snap.Objects)))
	return nil
}

func (a *app) runBuild(cmd *cobra.Command, args []string) error {
	m, err := LoadManifest(args[0])
	if err != nil {
		return err
	}
	lib, report, err := Build(m, a.libraryOptions()...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range report.Rejected {
		fmt.Fprintf(out, "rejected: %s\n", r)
	}
	if err := lib.Verify(); err != nil {
		return err
	}

	engine, err := a.openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := a.save(cmd.Context(), engine, lib); err != nil {
		return err
	}
	fmt.Fprintf(out, "built %d scenes, %d collections, %d objects\n",
		len(lib.Scenes()), len(lib.Collections()), len(lib.Objects()))
	return nil
}

func (a *app) runTree(cmd *cobra.Command, args []string) error {
	return a.withLibrary(cmd.Context(), func(lib *collection.Library) (bool, error) {
		out := cmd.OutOrStdout()
		for _, s := range lib.Scenes() {
			fmt.Fprintf(out, "scene %s\n", s.Name)
			printTree(out, s.Master, 1)
		}
		for _, c := range lib.Collections() {
			if len(c.Parents()) == 0 {
				fmt.Fprintln(out, "orphan")
				printTree(out, c, 1)
			}
		}
		return false, nil
	})
}

func printTree(w io.Writer, c *collection.Collection, depth int) {
	indent := strings.Repeat("  ", depth)
	line := indent + c.Name
	if f := flagString(c.Flags()); f != "" {
		line += " [" + f + "]"
	}
	fmt.Fprintln(w, line)
	for _, ob := range c.Objects() {
		fmt.Fprintf(w, "%s  - %s\n", indent, ob.Name)
	}
	for _, child := range c.Children() {
		printTree(w, child, depth+1)
	}
}

func (a *app) runFlatten(cmd *cobra.Command, args []string) error {
	sceneName, _ := cmd.Flags().GetString("scene")
	return a.withLibrary(cmd.Context(), func(lib *collection.Library) (bool, error) {
		c, err := findCollection(lib, sceneName, args[0])
		if err != nil {
			return false, err
		}
		out := cmd.OutOrStdout()
		for _, base := range c.Flattened() {
			fmt.Fprintf(out, "%s\tvisible=%v\tselectable=%v\trenderable=%v\n",
				base.Object.Name, base.Visible(), base.Selectable(), base.Renderable())
		}
		return false, nil
	})
}

func findCollection(lib *collection.Library, sceneName, name string) (*collection.Collection, error) {
	if sceneName != "" {
		for _, s := range lib.Scenes() {
			if s.Name == sceneName {
				return s.Master, nil
			}
		}
		return nil, fmt.Errorf("scene %q not found", sceneName)
	}
	for _, s := range lib.Scenes() {
		if s.Master.Name == name || s.Name == name {
			return s.Master, nil
		}
	}
	if c := lib.CollectionByName(name); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("collection %q not found", name)
}

func (a *app) runObjects(cmd *cobra.Command, args []string) error {
	return a.withLibrary(cmd.Context(), func(lib *collection.Library) (bool, error) {
		out := cmd.OutOrStdout()
		for _, s := range lib.Scenes() {
			fmt.Fprintf(out, "scene %s\n", s.Name)
			for ob := range s.AllObjects() {
				line := "  " + ob.Name
				if ob.Instance != nil {
					line += " -> " + ob.Instance.Name
				}
				fmt.Fprintln(out, line)
			}
		}
		return false, nil
	})
}

func (a *app) runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if a.cfg.Cache.WarmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Cache.WarmTimeout)
		defer cancel()
	}
	return a.withLibrary(ctx, func(lib *collection.Library) (bool, error) {
		start := time.Now()
		for _, s := range lib.Scenes() {
			if err := lib.WarmCaches(ctx, s); err != nil {
				return false, fmt.Errorf("warming scene %s: %w", s.Name, err)
			}
		}
		if err := lib.Verify(); err != nil {
			return false, err
		}
		a.log.Debug("caches warmed", zap.Duration("elapsed", time.Since(start)))
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d scenes, %d collections, %d objects\n",
			len(lib.Scenes()), len(lib.Collections()), len(lib.Objects()))
		return false, nil
	})
}

func (a *app) runLink(cmd *cobra.Command, args []string) error {
	return a.withLibrary(cmd.Context(), func(lib *collection.Library) (bool, error) {
		parent, err := findCollection(lib, "", args[0])
		if err != nil {
			return false, err
		}
		child := lib.CollectionByName(args[1])
		if child == nil {
			return false, fmt.Errorf("collection %q not found", args[1])
		}
		if !lib.AddChild(parent, child) {
			return false, fmt.Errorf("cannot link %s under %s", child.Name, parent.Name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "linked %s -> %s\n", parent.Name, child.Name)
		return true, nil
	})
}

func (a *app) runDelete(cmd *cobra.Command, args []string) error {
	hierarchy, _ := cmd.Flags().GetBool("hierarchy")
	return a.withLibrary(cmd.Context(), func(lib *collection.Library) (bool, error) {
		c := lib.CollectionByName(args[0])
		if c == nil {
			return false, fmt.Errorf("collection %q not found", args[0])
		}
		if !lib.Delete(c, hierarchy) {
			return false, fmt.Errorf("cannot delete %s", c.Name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return true, nil
	})
}

// writeMetrics prints the scenegraph counters of the default registry.
func writeMetrics(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "scenegraph_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				parts := make([]string, 0, len(labels))
				for _, lp := range labels {
					parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
				}
				name += "{" + strings.Join(parts, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
