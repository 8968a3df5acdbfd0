// Package fhirgwtest provides a hand-rolled in-memory fhirgw.Reader for
// evaluator and orchestrator tests.
package fhirgwtest

import (
	"context"
	"errors"

	"github.com/ehr/eligibility/internal/fhirgw"
)

// Fake is an in-memory fhirgw.Reader. Populate its fields directly, then
// pass it wherever a fhirgw.Reader is expected.
type Fake struct {
	Patient              *fhirgw.Patient
	Conditions           []fhirgw.Condition
	Observations         []fhirgw.Observation
	MedicationStatements []fhirgw.MedicationStatement
	MedicationRequests   []fhirgw.MedicationRequest
	Allergies            []fhirgw.AllergyIntolerance
	Procedures           []fhirgw.Procedure
	DiagnosticReports    []fhirgw.DiagnosticReport
	Immunizations        []fhirgw.Immunization

	// Err, if set, is returned by every Search* call, to exercise
	// query_failed handling in the Leaf Evaluators.
	Err error
}

var _ fhirgw.Reader = (*Fake)(nil)

// ErrNotFound is a representative not-found error for Patient lookups.
var ErrNotFound = errors.New("fhirgwtest: not found")

func (f *Fake) SearchPatient(_ context.Context, _ string) (*fhirgw.Patient, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Patient == nil {
		return nil, ErrNotFound
	}
	return f.Patient, nil
}

func (f *Fake) SearchConditions(_ context.Context, _ string, _ map[string]string) ([]fhirgw.Condition, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Conditions, nil
}

func (f *Fake) SearchObservations(_ context.Context, _ string, _ map[string]string) ([]fhirgw.Observation, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Observations, nil
}

func (f *Fake) SearchMedicationStatements(_ context.Context, _ string, _ map[string]string) ([]fhirgw.MedicationStatement, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.MedicationStatements, nil
}

func (f *Fake) SearchMedicationRequests(_ context.Context, _ string, _ map[string]string) ([]fhirgw.MedicationRequest, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.MedicationRequests, nil
}

func (f *Fake) SearchAllergies(_ context.Context, _ string, _ map[string]string) ([]fhirgw.AllergyIntolerance, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Allergies, nil
}

func (f *Fake) SearchProcedures(_ context.Context, _ string, _ map[string]string) ([]fhirgw.Procedure, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Procedures, nil
}

func (f *Fake) SearchDiagnosticReports(_ context.Context, _ string, _ map[string]string) ([]fhirgw.DiagnosticReport, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.DiagnosticReports, nil
}

func (f *Fake) SearchImmunizations(_ context.Context, _ string, _ map[string]string) ([]fhirgw.Immunization, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Immunizations, nil
}
