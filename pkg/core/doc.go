// Package core defines the shared language of the leapgraph system.
//
// This package contains:
//   - Domain entities (Node, NodeConfig, Run, NodeRun)
//   - Service interfaces (Adapter, Store)
//   - Configuration types (ProjectConfig, TargetConfig, RunFlags)
//   - The error taxonomy shared by the resolver, linker, compiler and engine
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
