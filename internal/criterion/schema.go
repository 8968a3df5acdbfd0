// Package criterion is the in-memory data model for a compiled eligibility
// protocol, plus the Validator and a post-order Walk utility.
//
// A Node is a tagged union over Leaf | Group, modeled as a single struct
// with a discriminator.
package criterion

import "encoding/json"

// Type is the inclusion/exclusion tag.
type Type string

const (
	TypeInclusion Type = "inclusion"
	TypeExclusion Type = "exclusion"
)

// Category is the closed set of leaf categories.
type Category string

const (
	CategoryDemographics     Category = "demographics"
	CategoryCondition        Category = "condition"
	CategoryObservation      Category = "observation"
	CategoryMedication       Category = "medication"
	CategoryMedicationReq    Category = "medication_request"
	CategoryAllergy          Category = "allergy"
	CategoryProcedure        Category = "procedure"
	CategoryDiagnosticReport Category = "diagnostic_report"
	CategoryImmunization     Category = "immunization"
	CategoryPerformanceStat  Category = "performance_status"
)

// Operator is the closed set of leaf comparison operators.
type Operator string

const (
	OpEquals              Operator = "equals"
	OpBetween             Operator = "between"
	OpGreaterThan         Operator = "greater_than"
	OpGreaterThanOrEqual  Operator = "greater_than_or_equal"
	OpLessThan            Operator = "less_than"
	OpLessThanOrEqual     Operator = "less_than_or_equal"
	OpContains            Operator = "contains"
	OpNotContains         Operator = "not_contains"
	OpExists              Operator = "exists"
	OpNotExists           Operator = "not_exists"
)

// LogicOperator is the closed set of group combinators.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
	LogicNot LogicOperator = "NOT"
)

// FHIRResource is the FHIR R4 resource kind a leaf queries.
type FHIRResource string

const (
	ResourcePatient             FHIRResource = "Patient"
	ResourceCondition           FHIRResource = "Condition"
	ResourceObservation         FHIRResource = "Observation"
	ResourceMedicationStatement FHIRResource = "MedicationStatement"
	ResourceMedicationRequest   FHIRResource = "MedicationRequest"
	ResourceAllergyIntolerance  FHIRResource = "AllergyIntolerance"
	ResourceProcedure           FHIRResource = "Procedure"
	ResourceDiagnosticReport    FHIRResource = "DiagnosticReport"
	ResourceImmunization        FHIRResource = "Immunization"
)

// Coding is the {system, code, display} triple the Compiler's post-processor
// injects.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// TemporalDirection is one side of a temporal_constraint.
type TemporalDirection string

const (
	TemporalWithin      TemporalDirection = "within"
	TemporalAtLeastAgo  TemporalDirection = "at_least_ago"
)

// TemporalConstraint is a best-effort date-window filter.
type TemporalConstraint struct {
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"` // days, weeks, months, years
	Direction TemporalDirection `json:"direction"`
}

// Node is a tagged union: it is a leaf iff Criteria is nil/empty, a group
// otherwise.
type Node struct {
	// Group fields.
	LogicOperator LogicOperator `json:"logic_operator,omitempty"`
	Criteria      []*Node       `json:"criteria,omitempty"`

	// Shared fields.
	Type        Type   `json:"type,omitempty"`
	Description string `json:"description,omitempty"`

	// Leaf fields.
	Category           Category            `json:"category,omitempty"`
	Attribute          string              `json:"attribute,omitempty"`
	Operator           Operator            `json:"operator,omitempty"`
	Value              json.RawMessage     `json:"value,omitempty"`
	Unit               string              `json:"unit,omitempty"`
	FHIRResource       FHIRResource        `json:"fhir_resource,omitempty"`
	Coding             *Coding             `json:"coding,omitempty"`
	StatusFilter       string              `json:"status_filter,omitempty"`
	TemporalConstraint *TemporalConstraint `json:"temporal_constraint,omitempty"`
}

// IsLeaf reports whether n has no child criteria.
func (n *Node) IsLeaf() bool {
	return len(n.Criteria) == 0
}

// IsGroup reports whether n has child criteria.
func (n *Node) IsGroup() bool {
	return len(n.Criteria) > 0
}

// EffectiveType returns n.Type if set, else inherited: a node without an
// explicit tag takes its enclosing group's.
func (n *Node) EffectiveType(inherited Type) Type {
	if n.Type != "" {
		return n.Type
	}
	return inherited
}

// ScalarValue decodes Value as a single float64, for operators that compare
// one number (greater_than, less_than, equals on numerics).
func (n *Node) ScalarValue() (float64, bool) {
	if len(n.Value) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(n.Value, &f); err != nil {
		return 0, false
	}
	return f, true
}

// RangeValue decodes Value as a [low, high] pair, for operator=between.
func (n *Node) RangeValue() (low, high float64, ok bool) {
	if len(n.Value) == 0 {
		return 0, 0, false
	}
	var pair [2]float64
	if err := json.Unmarshal(n.Value, &pair); err != nil {
		return 0, 0, false
	}
	return pair[0], pair[1], true
}

// StringValue decodes Value as a string, for text-match operators.
func (n *Node) StringValue() (string, bool) {
	if len(n.Value) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(n.Value, &s); err != nil {
		return "", false
	}
	return s, true
}
