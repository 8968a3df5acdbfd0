package criterion

import (
	"fmt"

	"github.com/ehr/eligibility/internal/engineerr"
)

// DefaultMaxDepth is used when a caller does not supply MAX_CRITERIA_DEPTH.
const DefaultMaxDepth = 10

var validTypes = map[Type]bool{TypeInclusion: true, TypeExclusion: true}

var validCategories = map[Category]bool{
	CategoryDemographics: true, CategoryCondition: true, CategoryObservation: true,
	CategoryMedication: true, CategoryMedicationReq: true, CategoryAllergy: true,
	CategoryProcedure: true, CategoryDiagnosticReport: true, CategoryImmunization: true,
	CategoryPerformanceStat: true,
}

var validOperators = map[Operator]bool{
	OpEquals: true, OpBetween: true, OpGreaterThan: true, OpGreaterThanOrEqual: true,
	OpLessThan: true, OpLessThanOrEqual: true, OpContains: true, OpNotContains: true,
	OpExists: true, OpNotExists: true,
}

var validLogicOperators = map[LogicOperator]bool{
	LogicAnd: true, LogicOr: true, LogicNot: true,
}

var validFHIRResources = map[FHIRResource]bool{
	ResourcePatient: true, ResourceCondition: true, ResourceObservation: true,
	ResourceMedicationStatement: true, ResourceMedicationRequest: true,
	ResourceAllergyIntolerance: true, ResourceProcedure: true,
	ResourceDiagnosticReport: true, ResourceImmunization: true,
}

// Validate checks a single top-level node (and its descendants) against
// every structural invariant. It is the only gate between the Compiler and
// the Evaluator: anything the Evaluator receives has been validated.
func Validate(n *Node, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return validateNode(n, TypeInclusion, 1, maxDepth, true)
}

// ValidateAll validates a list of top-level nodes, the shape the Compiler's
// pipeline produces.
func ValidateAll(nodes []*Node, maxDepth int) error {
	if len(nodes) == 0 {
		return engineerr.New(engineerr.KindSchemaInvalid, "empty top-level criteria list")
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	for i, n := range nodes {
		if err := validateNode(n, TypeInclusion, 1, maxDepth, true); err != nil {
			return fmt.Errorf("criteria[%d]: %w", i, err)
		}
	}
	return nil
}

func validateNode(n *Node, inherited Type, depth, maxDepth int, isTop bool) error {
	if n == nil {
		return engineerr.New(engineerr.KindSchemaInvalid, "nil node")
	}
	if depth > maxDepth {
		return engineerr.New(engineerr.KindDepthExceeded, fmt.Sprintf("depth %d exceeds max %d", depth, maxDepth))
	}

	effType := n.EffectiveType(inherited)
	// Every top-level node (and every node reachable without an inherited
	// type) must resolve to a concrete type.
	if isTop && n.Type == "" {
		return engineerr.New(engineerr.KindSchemaInvalid, "top-level node missing type")
	}
	if !validTypes[effType] {
		return engineerr.New(engineerr.KindSchemaInvalid, fmt.Sprintf("unknown type %q", effType))
	}

	if n.IsGroup() {
		return validateGroup(n, effType, depth, maxDepth)
	}
	return validateLeaf(n, effType)
}

func validateGroup(n *Node, effType Type, depth, maxDepth int) error {
	if !validLogicOperators[n.LogicOperator] {
		return engineerr.New(engineerr.KindSchemaInvalid, fmt.Sprintf("unknown logic_operator %q", n.LogicOperator))
	}
	if len(n.Criteria) == 0 {
		return engineerr.New(engineerr.KindSchemaInvalid, "group has no children")
	}
	if n.LogicOperator == LogicNot && len(n.Criteria) != 1 {
		return engineerr.New(engineerr.KindSchemaInvalid,
			fmt.Sprintf("NOT must have exactly one child, got %d", len(n.Criteria)))
	}
	for i, child := range n.Criteria {
		if err := validateNode(child, effType, depth+1, maxDepth, false); err != nil {
			return fmt.Errorf("criteria[%d]: %w", i, err)
		}
	}
	return nil
}

func validateLeaf(n *Node, effType Type) error {
	if n.Category == "" {
		return engineerr.New(engineerr.KindSchemaInvalid, "leaf missing category")
	}
	if !validCategories[n.Category] {
		return engineerr.New(engineerr.KindUnknownCategory, string(n.Category))
	}
	if n.FHIRResource == "" {
		return engineerr.New(engineerr.KindSchemaInvalid, "leaf missing fhir_resource")
	}
	if !validFHIRResources[n.FHIRResource] {
		return engineerr.New(engineerr.KindSchemaInvalid, fmt.Sprintf("unknown fhir_resource %q", n.FHIRResource))
	}
	if n.Operator == "" {
		return engineerr.New(engineerr.KindSchemaInvalid, "leaf missing operator")
	}
	if !validOperators[n.Operator] {
		return engineerr.New(engineerr.KindUnknownOperator, string(n.Operator))
	}
	if n.Attribute == "" {
		return engineerr.New(engineerr.KindSchemaInvalid, "leaf missing attribute")
	}
	_ = effType
	return nil
}
