package loader

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapgraph/internal/template"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"gopkg.in/yaml.v3"
)

// sourcesFile is a YAML file declaring external tables.
type sourcesFile struct {
	Sources []sourceDef `yaml:"sources"`
}

type sourceDef struct {
	Name        string     `yaml:"name"`
	Schema      string     `yaml:"schema"`
	Database    string     `yaml:"database"`
	Description string     `yaml:"description"`
	Tables      []tableDef `yaml:"tables"`
}

type tableDef struct {
	Name        string `yaml:"name"`
	Identifier  string `yaml:"identifier"`
	Description string `yaml:"description"`
}

// loadSources adds a source node per declared table. Files without a
// sources key are ignored.
func (l *loader) loadSources(pkg pkgInfo, rel string, content []byte) error {
	var file sourcesFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return fmt.Errorf("%s: invalid YAML: %w", rel, err)
	}

	for _, src := range file.Sources {
		if src.Name == "" {
			return fmt.Errorf("%s: source without a name", rel)
		}
		schema := src.Schema
		if schema == "" {
			schema = src.Name
		}
		for _, table := range src.Tables {
			if table.Name == "" {
				return fmt.Errorf("%s: source %s has a table without a name", rel, src.Name)
			}
			identifier := table.Identifier
			if identifier == "" {
				identifier = table.Name
			}
			description := table.Description
			if description == "" {
				description = src.Description
			}
			node := &core.Node{
				UniqueID:         core.NodeID(core.ResourceSource, pkg.name, src.Name, table.Name),
				Name:             table.Name,
				PackageName:      pkg.name,
				ResourceType:     core.ResourceSource,
				FQN:              []string{pkg.name, src.Name, table.Name},
				Path:             rel,
				OriginalFilePath: rel,
				SourceName:       src.Name,
				Identifier:       identifier,
				Database:         src.Database,
				Schema:           schema,
				Description:      description,
				Config:           core.NodeConfig{Enabled: true},
			}
			if err := l.manifest.AddSource(node); err != nil {
				return err
			}
			l.result.count(core.ResourceSource)
		}
	}
	return nil
}

// loadDocs adds a documentation node per docs block of a Markdown file.
func (l *loader) loadDocs(pkg pkgInfo, rel, content string) error {
	tmpl, err := template.ParseString(content, rel)
	if err != nil {
		return err
	}
	for _, block := range tmpl.Docs() {
		node := &core.Node{
			UniqueID:         core.NodeID(core.ResourceDocumentation, pkg.name, block.Name),
			Name:             block.Name,
			PackageName:      pkg.name,
			ResourceType:     core.ResourceDocumentation,
			FQN:              []string{pkg.name, block.Name},
			Path:             rel,
			OriginalFilePath: rel,
			BlockContents:    strings.TrimSpace(block.Text),
			Config:           core.NodeConfig{Enabled: true},
		}
		if err := l.manifest.AddDoc(node); err != nil {
			return err
		}
		l.result.count(core.ResourceDocumentation)
	}
	return nil
}
