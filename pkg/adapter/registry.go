package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// factories maps lower-cased target types to their adapter factory.
var factories = struct {
	sync.RWMutex
	m map[string]Factory
}{m: make(map[string]Factory)}

// Register makes an adapter available under a case-insensitive target type.
// Adapters register themselves from init.
func Register(name string, f Factory) {
	factories.Lock()
	defer factories.Unlock()
	factories.m[strings.ToLower(name)] = f
}

func lookup(name string) (Factory, bool) {
	factories.RLock()
	defer factories.RUnlock()
	f, ok := factories.m[strings.ToLower(name)]
	return f, ok
}

// IsRegistered reports whether a target type has an adapter.
func IsRegistered(name string) bool {
	_, ok := lookup(name)
	return ok
}

// Available returns the registered target types, sorted.
func Available() []string {
	factories.RLock()
	defer factories.RUnlock()
	return slices.Sorted(maps.Keys(factories.m))
}

// NewAdapter creates an unconnected adapter for cfg.Type.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, errors.New("adapter type not specified")
	}
	f, ok := lookup(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: Available()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return f(logger.With("adapter", strings.ToLower(cfg.Type))), nil
}

// UnknownAdapterError is returned for a target type nothing registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q (available: %s); check target.type in leapgraph.yaml",
		e.Type, strings.Join(e.Available, ", "))
}
