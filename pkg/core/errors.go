package core

import (
	"fmt"
	"strings"
)

// DuplicateResourceError is returned when two nodes collide on name or on the
// relation they would materialize.
type DuplicateResourceError struct {
	Reason     string
	FirstID    string
	FirstPath  string
	SecondID   string
	SecondPath string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("duplicate resource: %s\n  - %s (%s)\n  - %s (%s)",
		e.Reason, e.FirstID, e.FirstPath, e.SecondID, e.SecondPath)
}

// InternalError signals a broken invariant: callers were expected to have
// validated the input already.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Message
}

// Internalf builds an InternalError.
func Internalf(format string, args ...any) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...)}
}

// ReferenceKind identifies which template callable produced a reference.
type ReferenceKind string

// Reference kinds.
const (
	ReferenceRef    ReferenceKind = "ref"
	ReferenceSource ReferenceKind = "source"
	ReferenceDoc    ReferenceKind = "doc"
)

// ReferenceError is a ref/source/doc target that could not be resolved or
// resolved to a disabled node.
type ReferenceError struct {
	Kind     ReferenceKind
	Target   string
	NodeID   string
	NodePath string
	// Disabled is true when the target exists but is turned off.
	Disabled bool
	// Warn is true when the requesting node is a test: the error is reported
	// but does not stop the run.
	Warn bool
}

func (e *ReferenceError) Error() string {
	if e.Disabled {
		return fmt.Sprintf("%s (%s) depends on %s %q which is disabled", e.NodeID, e.NodePath, e.Kind, e.Target)
	}
	return fmt.Sprintf("%s (%s) depends on %s %q which was not found", e.NodeID, e.NodePath, e.Kind, e.Target)
}

// MissingDependencyError is returned when a depends_on id is not in the store.
type MissingDependencyError struct {
	NodeID       string
	DependencyID string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s depends on %s which is not in the manifest", e.NodeID, e.DependencyID)
}

// CycleError reports a dependency cycle. Path starts and ends at the same id.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "found a cycle: " + strings.Join(e.Path, " --> ")
}

// SelectionError is returned when a selection names nodes missing from the graph.
type SelectionError struct {
	Missing []string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selected node(s) not found in graph (missing or disabled): %s", strings.Join(e.Missing, ", "))
}

// UnresolvedCTEError is returned when a CTE points at an id absent from the store.
type UnresolvedCTEError struct {
	NodeID string
	CTEID  string
}

func (e *UnresolvedCTEError) Error() string {
	return fmt.Sprintf("%s: cannot inject cte %s: node not found in manifest", e.NodeID, e.CTEID)
}

// InvalidEphemeralError is returned when an ephemeral dependency is neither
// compiled nor a compilable node.
type InvalidEphemeralError struct {
	NodeID       string
	DependencyID string
	Reason       string
}

func (e *InvalidEphemeralError) Error() string {
	return fmt.Sprintf("%s: invalid ephemeral dependency %s: %s", e.NodeID, e.DependencyID, e.Reason)
}

// TemplateError wraps a render failure with the node that caused it.
type TemplateError struct {
	NodeID string
	File   string
	Cause  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s (%s): template error: %v", e.NodeID, e.File, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}
