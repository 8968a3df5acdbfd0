package fhirgw

import "context"

// Reader is the subset of Gateway the Leaf Evaluators depend on. It lets
// tests substitute a fhirgwtest fake instead of a live FHIR server.
type Reader interface {
	SearchPatient(ctx context.Context, patientID string) (*Patient, error)
	SearchConditions(ctx context.Context, patientID string, params map[string]string) ([]Condition, error)
	SearchObservations(ctx context.Context, patientID string, params map[string]string) ([]Observation, error)
	SearchMedicationStatements(ctx context.Context, patientID string, params map[string]string) ([]MedicationStatement, error)
	SearchMedicationRequests(ctx context.Context, patientID string, params map[string]string) ([]MedicationRequest, error)
	SearchAllergies(ctx context.Context, patientID string, params map[string]string) ([]AllergyIntolerance, error)
	SearchProcedures(ctx context.Context, patientID string, params map[string]string) ([]Procedure, error)
	SearchDiagnosticReports(ctx context.Context, patientID string, params map[string]string) ([]DiagnosticReport, error)
	SearchImmunizations(ctx context.Context, patientID string, params map[string]string) ([]Immunization, error)
}

var _ Reader = (*Gateway)(nil)
