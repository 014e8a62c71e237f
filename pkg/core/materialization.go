package core

// Materialization constants for node configs.
const (
	MaterializationTable     = "table"
	MaterializationView      = "view"
	MaterializationEphemeral = "ephemeral"
	MaterializationSeed      = "seed"
	MaterializationTest      = "test"
	MaterializationSnapshot  = "snapshot"
	MaterializationOperation = "operation"
)

// DefaultMaterialization returns the materialization a node of the given type
// gets when nothing in the config hierarchy sets one.
func DefaultMaterialization(r ResourceType) string {
	switch r {
	case ResourceSeed:
		return MaterializationSeed
	case ResourceTest:
		return MaterializationTest
	case ResourceSnapshot:
		return MaterializationSnapshot
	case ResourceOperation:
		return MaterializationOperation
	default:
		return MaterializationView
	}
}
