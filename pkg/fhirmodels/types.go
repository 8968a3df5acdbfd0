// Package fhirmodels holds FHIR R4 value-set constants for the resource
// kinds the eligibility engine queries.
package fhirmodels

// ConditionClinicalStatus codes.
const (
	ConditionActive     = "active"
	ConditionRecurrence = "recurrence"
	ConditionRelapse    = "relapse"
	ConditionInactive   = "inactive"
	ConditionRemission  = "remission"
	ConditionResolved   = "resolved"
)

// MedicationStatement status codes.
const (
	MedStatementActive    = "active"
	MedStatementCompleted = "completed"
	MedStatementStopped   = "stopped"
	MedStatementIntended  = "intended"
	MedStatementOnHold    = "on-hold"
)

// MedicationRequest status and intent codes.
const (
	MedRequestActive    = "active"
	MedRequestCompleted = "completed"
	MedRequestCancelled = "cancelled"
	MedRequestStopped   = "stopped"

	MedRequestIntentOrder    = "order"
	MedRequestIntentPlan     = "plan"
	MedRequestIntentProposal = "proposal"
)

// Observation status codes.
const (
	ObservationFinal       = "final"
	ObservationPreliminary = "preliminary"
	ObservationAmended     = "amended"
	ObservationRegistered  = "registered"
)

// Procedure status codes.
const (
	ProcedureCompleted  = "completed"
	ProcedureInProgress = "in-progress"
	ProcedureNotDone    = "not-done"
	ProcedureStopped    = "stopped"
)

// DiagnosticReport status codes.
const (
	ReportFinal       = "final"
	ReportPreliminary = "preliminary"
	ReportAmended     = "amended"
	ReportRegistered  = "registered"
)

// Immunization status codes.
const (
	ImmunizationCompleted      = "completed"
	ImmunizationNotDone        = "not-done"
	ImmunizationEnteredInError = "entered-in-error"
)

// AllergyIntolerance category codes.
const (
	AllergyCategoryMedication  = "medication"
	AllergyCategoryFood        = "food"
	AllergyCategoryEnvironment = "environment"
	AllergyCategoryBiologic    = "biologic"
)

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)
