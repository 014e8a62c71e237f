// Package adapter registers warehouse adapters by target type and holds the
// database/sql handle the concrete adapters under pkg/adapters share.
package adapter

import (
	"log/slog"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

type (
	// Adapter is the warehouse contract, see core.Adapter.
	Adapter = core.Adapter
	// Config is the connection config, see core.AdapterConfig.
	Config = core.AdapterConfig
)

// Factory builds an unconnected adapter logging to logger.
type Factory func(logger *slog.Logger) Adapter
