// Package loader discovers a project on disk and builds its manifest.
//
// Loading reads the root project and every package under packages/, turns
// SQL, CSV, YAML and Markdown files into nodes, resolves each node's config,
// and renders every template once to capture the references it makes.
// The resulting manifest is ready for the resolver.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/leapstack-labs/leapgraph/internal/config"
	"github.com/leapstack-labs/leapgraph/internal/macro"
	"github.com/leapstack-labs/leapgraph/internal/manifest"
	starctx "github.com/leapstack-labs/leapgraph/internal/starlark"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// Options configure Load.
type Options struct {
	// ProjectDir is the root project directory.
	ProjectDir string
	// Project is the parsed root project file; read from ProjectDir when nil.
	Project *core.ProjectConfig
	// Target is exposed to templates as target. Its schema is the default
	// schema of every relation.
	Target *core.TargetConfig
	// Env is exposed to templates as env.
	Env string
	// Vars override project vars of the same name.
	Vars map[string]any
	// Threads bounds the parallel capture render. Zero uses one per CPU.
	Threads int
	Logger  *slog.Logger
}

// Project is a loaded project.
type Project struct {
	Root     string
	Config   *core.ProjectConfig
	Manifest *manifest.Manifest
	Macros   *macro.Registry
	// PackageRoots maps package names to their directories.
	PackageRoots map[string]string
	// Render holds the template inputs shared by every render; the compiler
	// uses the same settings as the capture render.
	Render starctx.Settings
	Result *Result
}

// Result contains statistics about a load.
type Result struct {
	Packages   int
	Models     int
	Tests      int
	Seeds      int
	Snapshots  int
	Analyses   int
	Operations int
	Sources    int
	Docs       int
	Macros     int
	Disabled   int
	Duration   time.Duration
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"%d models, %d tests, %d seeds, %d snapshots, %d analyses, %d operations, "+
			"%d sources, %d docs, %d macros (%d disabled) in %s",
		r.Models, r.Tests, r.Seeds, r.Snapshots, r.Analyses, r.Operations,
		r.Sources, r.Docs, r.Macros, r.Disabled, r.Duration.Round(time.Millisecond),
	)
}

func (r *Result) count(rt core.ResourceType) {
	switch rt {
	case core.ResourceModel:
		r.Models++
	case core.ResourceTest:
		r.Tests++
	case core.ResourceSeed:
		r.Seeds++
	case core.ResourceSnapshot:
		r.Snapshots++
	case core.ResourceAnalysis:
		r.Analyses++
	case core.ResourceOperation:
		r.Operations++
	case core.ResourceSource:
		r.Sources++
	case core.ResourceDocumentation:
		r.Docs++
	case core.ResourceMacro:
		r.Macros++
	}
}

// pkgInfo is one package taking part in the load.
type pkgInfo struct {
	name string
	root string
	cfg  *core.ProjectConfig
}

// Load reads the project at opts.ProjectDir.
func Load(ctx context.Context, opts Options) (*Project, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	root, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir: %w", err)
	}
	rootCfg := opts.Project
	if rootCfg == nil {
		if rootCfg, err = config.LoadProject(root); err != nil {
			return nil, err
		}
	}

	pkgs, err := discoverPackages(root, rootCfg)
	if err != nil {
		return nil, err
	}

	l := &loader{
		root:     pkgInfo{name: rootCfg.Name, root: root, cfg: rootCfg},
		target:   opts.Target,
		manifest: manifest.New(),
		result:   &Result{Packages: len(pkgs)},
		logger:   logger,
	}
	logger.Info("loading project", "project", rootCfg.Name, "dir", root, "packages", len(pkgs)-1)

	registry, err := l.loadMacros(pkgs)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(rootCfg.Vars)+len(opts.Vars))
	maps.Copy(vars, rootCfg.Vars)
	maps.Copy(vars, opts.Vars)

	threads := opts.Threads
	if threads <= 0 {
		threads = config.DefaultThreads()
	}
	settings := starctx.Settings{
		Env:    opts.Env,
		Target: opts.Target,
		Vars:   vars,
		Macros: registry,
		Pool:   starctx.NewThreadPool(threads),
	}

	var pending []*core.Node
	for _, pkg := range pkgs {
		nodes, err := l.loadPackage(pkg)
		if err != nil {
			return nil, err
		}
		pending = append(pending, nodes...)
	}
	hooks, err := l.hookNodes(pkgs)
	if err != nil {
		return nil, err
	}
	pending = append(pending, hooks...)

	if err := captureAll(ctx, settings, pending, threads); err != nil {
		return nil, err
	}

	for _, node := range pending {
		if err := l.add(node); err != nil {
			return nil, err
		}
	}

	roots := make(map[string]string, len(pkgs))
	for _, pkg := range pkgs {
		roots[pkg.name] = pkg.root
	}

	l.result.Duration = time.Since(start)
	logger.Info("project loaded",
		"models", l.result.Models,
		"tests", l.result.Tests,
		"seeds", l.result.Seeds,
		"sources", l.result.Sources,
		"disabled", l.result.Disabled,
		"duration_ms", l.result.Duration.Milliseconds())

	return &Project{
		Root:         root,
		Config:       rootCfg,
		Manifest:     l.manifest,
		Macros:       registry,
		PackageRoots: roots,
		Render:       settings,
		Result:       l.result,
	}, nil
}

// discoverPackages returns the root package followed by every directory
// under the packages dir that holds a project file, sorted by name.
func discoverPackages(root string, rootCfg *core.ProjectConfig) ([]pkgInfo, error) {
	pkgs := []pkgInfo{{name: rootCfg.Name, root: root, cfg: rootCfg}}

	dir := filepath.Join(root, rootCfg.PackagesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return pkgs, nil
		}
		return nil, fmt.Errorf("failed to read packages directory: %w", err)
	}

	seen := map[string]string{rootCfg.Name: root}
	var deps []pkgInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pkgRoot := filepath.Join(dir, entry.Name())
		if config.FindConfigFile(pkgRoot) == "" {
			continue
		}
		cfg, err := config.LoadProject(pkgRoot)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[cfg.Name]; ok {
			return nil, fmt.Errorf("package %q is defined twice: %s and %s", cfg.Name, prev, pkgRoot)
		}
		seen[cfg.Name] = pkgRoot
		deps = append(deps, pkgInfo{name: cfg.Name, root: pkgRoot, cfg: cfg})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].name < deps[j].name })

	return append(pkgs, deps...), nil
}

// loader carries the state of one Load call.
type loader struct {
	root     pkgInfo
	target   *core.TargetConfig
	manifest *manifest.Manifest
	result   *Result
	logger   *slog.Logger
}

// loadMacros registers the macros of every package in one registry and adds
// a macro node per exported function.
func (l *loader) loadMacros(pkgs []pkgInfo) (*macro.Registry, error) {
	registry := macro.NewRegistry()
	for _, pkg := range pkgs {
		modules, err := macro.NewLoader(filepath.Join(pkg.root, pkg.cfg.MacrosDir), macro.WithPackage(pkg.name)).Load()
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterAll(modules); err != nil {
			return nil, fmt.Errorf("package %s: %w", pkg.name, err)
		}
	}
	for _, node := range registry.Nodes() {
		if err := l.manifest.AddMacro(node); err != nil {
			return nil, err
		}
		l.result.count(core.ResourceMacro)
	}
	return registry, nil
}

// add stores a loaded node in the live or disabled index.
func (l *loader) add(node *core.Node) error {
	if !node.Config.Enabled {
		l.manifest.AddDisabled(node)
		l.result.Disabled++
		l.logger.Debug("node disabled", "node", node.UniqueID)
		return nil
	}
	if err := l.manifest.Add(node); err != nil {
		return err
	}
	l.result.count(node.ResourceType)
	return nil
}

// defaultSchema is the schema relations land in without a schema config.
func (l *loader) defaultSchema() string {
	if l.target == nil {
		return ""
	}
	return l.target.Schema
}

// resolveConfig layers defaults, the package's own tree, the root project's
// tree and inline options, walking each tree by package then directory.
func (l *loader) resolveConfig(pkg pkgInfo, rt core.ResourceType, dirs []string, inline map[string]any) (core.NodeConfig, error) {
	layers := newConfigLayers(rt)
	path := append([]string{pkg.name}, dirs...)
	layers.walkTree(treeFor(pkg.cfg, rt), path)
	if pkg.name != l.root.name {
		layers.walkTree(treeFor(l.root.cfg, rt), path)
	}
	layers.apply(inline)
	return layers.decode()
}

// treeFor returns the config tree that governs nodes of a resource type.
// Operations take no tree config.
func treeFor(cfg *core.ProjectConfig, rt core.ResourceType) map[string]any {
	switch rt {
	case core.ResourceSeed:
		return cfg.Seeds
	case core.ResourceTest:
		return cfg.Tests
	case core.ResourceOperation:
		return nil
	default:
		return cfg.Models
	}
}
