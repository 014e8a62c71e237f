package loader

import (
	"fmt"
	"path"
	"strings"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// Column test kinds.
const (
	testUnique         = "unique"
	testNotNull        = "not_null"
	testAcceptedValues = "accepted_values"
)

// columnTests generates a test node per column assertion declared on a
// model. Each test selects the offending rows of the model, so it passes
// when it returns nothing. Tests of a disabled model are disabled too.
func (l *loader) columnTests(pkg pkgInfo, model *core.Node, dirs []string, decls []ColumnTests) ([]*core.Node, error) {
	var pending []*core.Node
	add := func(kind, column string, values []string) error {
		name := fmt.Sprintf("%s_%s_%s", kind, model.Name, column)
		cfg, err := l.resolveConfig(pkg, core.ResourceTest, dirs, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", model.OriginalFilePath, err)
		}
		if !model.Config.Enabled {
			cfg.Enabled = false
		}

		node := l.newNode(pkg, core.ResourceTest, name, dirs, cfg)
		node.Path = path.Join(path.Dir(model.Path), name+".sql")
		node.OriginalFilePath = model.OriginalFilePath
		node.RawCode = columnTestSQL(kind, model.Name, column, values)
		node.TestMetadata = &core.TestMetadata{Name: kind, Model: model.Name, Column: column, Values: values}
		pending = append(pending, node)
		return nil
	}

	for _, decl := range decls {
		for _, col := range decl.Unique {
			if err := add(testUnique, col, nil); err != nil {
				return nil, err
			}
		}
		for _, col := range decl.NotNull {
			if err := add(testNotNull, col, nil); err != nil {
				return nil, err
			}
		}
		if av := decl.AcceptedValues; av != nil {
			if err := add(testAcceptedValues, av.Column, av.Values); err != nil {
				return nil, err
			}
		}
	}
	return pending, nil
}

// columnTestSQL is the template of a generated test.
func columnTestSQL(kind, model, column string, values []string) string {
	ref := fmt.Sprintf("{{ ref(%q) }}", model)
	switch kind {
	case testUnique:
		return fmt.Sprintf("select %[1]s, count(*) as n\nfrom %[2]s\nwhere %[1]s is not null\ngroup by %[1]s\nhaving count(*) > 1", column, ref)
	case testNotNull:
		return fmt.Sprintf("select *\nfrom %s\nwhere %s is null", ref, column)
	default:
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		return fmt.Sprintf("select *\nfrom %s\nwhere %s not in (%s)", ref, column, strings.Join(quoted, ", "))
	}
}
