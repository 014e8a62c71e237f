package loader

import (
	"fmt"

	"github.com/leapstack-labs/leapgraph/internal/config"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// Hook tags mark the phase an operation runs in.
const (
	TagOnRunStart = "on-run-start"
	TagOnRunEnd   = "on-run-end"
)

// hookNodes turns on_run_start and on_run_end entries into operation nodes.
// Packages contribute their hooks before the root project.
func (l *loader) hookNodes(pkgs []pkgInfo) ([]*core.Node, error) {
	ordered := append(append([]pkgInfo(nil), pkgs[1:]...), pkgs[0])

	var pending []*core.Node
	for _, pkg := range ordered {
		for _, phase := range []struct {
			tag   string
			hooks []string
		}{
			{TagOnRunStart, pkg.cfg.OnRunStart},
			{TagOnRunEnd, pkg.cfg.OnRunEnd},
		} {
			for i, sql := range phase.hooks {
				name := fmt.Sprintf("%s-%s-%d", pkg.name, phase.tag, i)
				cfg, err := l.resolveConfig(pkg, core.ResourceOperation, nil, map[string]any{"tags": []string{phase.tag}})
				if err != nil {
					return nil, err
				}
				node := l.newNode(pkg, core.ResourceOperation, name, []string{"hooks"}, cfg)
				node.Path = config.ConfigFileName
				node.OriginalFilePath = config.ConfigFileName
				node.RawCode = sql
				pending = append(pending, node)
			}
		}
	}
	return pending, nil
}
