package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// sqlDirs maps the directories holding .sql files to the node type they produce.
func sqlDirs(cfg *core.ProjectConfig) []struct {
	dir string
	rt  core.ResourceType
} {
	return []struct {
		dir string
		rt  core.ResourceType
	}{
		{cfg.ModelsDir, core.ResourceModel},
		{cfg.TestsDir, core.ResourceTest},
		{cfg.SnapshotsDir, core.ResourceSnapshot},
		{cfg.AnalysesDir, core.ResourceAnalysis},
	}
}

// loadPackage reads every resource file of a package. Sources and docs go to
// the manifest directly; templated nodes are returned for capture.
func (l *loader) loadPackage(pkg pkgInfo) ([]*core.Node, error) {
	l.logger.Debug("loading package", "package", pkg.name, "dir", pkg.root)

	var pending []*core.Node
	for _, d := range sqlDirs(pkg.cfg) {
		err := l.walk(pkg, d.dir, ".sql", func(rel string, content []byte) error {
			nodes, err := l.sqlNodes(pkg, d.rt, d.dir, rel, string(content))
			if err != nil {
				return err
			}
			pending = append(pending, nodes...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	err := l.walk(pkg, pkg.cfg.SeedsDir, ".csv", func(rel string, _ []byte) error {
		node, err := l.seedNode(pkg, rel)
		if err != nil {
			return err
		}
		pending = append(pending, node)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ext := range []string{".yml", ".yaml"} {
		err := l.walk(pkg, pkg.cfg.ModelsDir, ext, func(rel string, content []byte) error {
			return l.loadSources(pkg, rel, content)
		})
		if err != nil {
			return nil, err
		}
	}

	docDirs := []string{pkg.cfg.DocsDir}
	if pkg.cfg.ModelsDir != pkg.cfg.DocsDir {
		docDirs = append(docDirs, pkg.cfg.ModelsDir)
	}
	for _, dir := range docDirs {
		err := l.walk(pkg, dir, ".md", func(rel string, content []byte) error {
			return l.loadDocs(pkg, rel, string(content))
		})
		if err != nil {
			return nil, err
		}
	}

	return pending, nil
}

// walk calls fn for every file with the given extension under dir, in
// lexical order. rel is slash-separated and relative to the package root.
// A missing directory is not an error. Hidden directories and the packages
// and target directories are skipped.
func (l *loader) walk(pkg pkgInfo, dir, ext string, fn func(rel string, content []byte) error) error {
	base := filepath.Join(pkg.root, dir)
	if _, err := os.Stat(base); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	skip := map[string]bool{
		filepath.Join(pkg.root, pkg.cfg.PackagesDir): true,
		filepath.Join(pkg.root, pkg.cfg.TargetDir):   true,
	}

	return filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != base && (strings.HasPrefix(d.Name(), ".") || skip[p]) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != ext {
			return nil
		}
		rel, err := filepath.Rel(pkg.root, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p) //nolint:gosec // G304: p comes from walking the project tree
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		return fn(filepath.ToSlash(rel), content)
	})
}

// location splits a package-relative file path into the path relative to
// its resource directory and the directories between them.
func location(resourceDir, rel string) (inDir string, dirs []string) {
	inDir = rel
	if prefix := path.Clean(filepath.ToSlash(resourceDir)); prefix != "." {
		inDir = strings.TrimPrefix(rel, prefix+"/")
	}
	if d := path.Dir(inDir); d != "." {
		dirs = strings.Split(d, "/")
	}
	return inDir, dirs
}

func stem(rel string) string {
	return strings.TrimSuffix(path.Base(rel), path.Ext(rel))
}

// sqlNodes builds the node for one .sql file plus the column tests its
// header declares.
func (l *loader) sqlNodes(pkg pkgInfo, rt core.ResourceType, resourceDir, rel, content string) ([]*core.Node, error) {
	parsed, err := ExtractFrontmatter(content)
	if err != nil {
		var parseErr *FrontmatterParseError
		var fieldErr *UnknownFieldError
		switch {
		case errors.As(err, &parseErr):
			parseErr.File = rel
		case errors.As(err, &fieldErr):
			fieldErr.File = rel
		}
		return nil, err
	}
	fm := parsed.Frontmatter

	inDir, dirs := location(resourceDir, rel)
	name := stem(rel)
	if fm.Name != "" {
		name = fm.Name
	}

	cfg, err := l.resolveConfig(pkg, rt, dirs, fm.Config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}

	node := l.newNode(pkg, rt, name, dirs, cfg)
	node.Path = inDir
	node.OriginalFilePath = rel
	node.RawCode = parsed.SQL
	node.Description = fm.Description

	pending := []*core.Node{node}
	if len(fm.Tests) > 0 {
		tests, err := l.columnTests(pkg, node, dirs, fm.Tests)
		if err != nil {
			return nil, err
		}
		pending = append(pending, tests...)
	}
	return pending, nil
}

// seedNode builds the node for one .csv file.
func (l *loader) seedNode(pkg pkgInfo, rel string) (*core.Node, error) {
	inDir, dirs := location(pkg.cfg.SeedsDir, rel)
	cfg, err := l.resolveConfig(pkg, core.ResourceSeed, dirs, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	node := l.newNode(pkg, core.ResourceSeed, stem(rel), dirs, cfg)
	node.Path = inDir
	node.OriginalFilePath = rel
	return node, nil
}

// newNode fills the identity and relation fields shared by every
// file-backed node.
func (l *loader) newNode(pkg pkgInfo, rt core.ResourceType, name string, dirs []string, cfg core.NodeConfig) *core.Node {
	fqn := make([]string, 0, len(dirs)+2)
	fqn = append(fqn, pkg.name)
	fqn = append(fqn, dirs...)
	fqn = append(fqn, name)

	schema := cfg.Schema
	if schema == "" {
		schema = l.defaultSchema()
	}

	return &core.Node{
		UniqueID:     core.NodeID(rt, pkg.name, name),
		Name:         name,
		PackageName:  pkg.name,
		ResourceType: rt,
		FQN:          fqn,
		Config:       cfg,
		Database:     cfg.Database,
		Schema:       schema,
		Alias:        cfg.Alias,
	}
}
