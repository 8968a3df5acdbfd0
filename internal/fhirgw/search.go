package fhirgw

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ehr/eligibility/internal/engineerr"
)

// maxPages bounds pagination so a misbehaving server (or an unbounded
// patient history) cannot make a single leaf evaluation run forever.
const maxPages = 50

// Search runs a FHIR search for resourceType scoped to patientID, following
// Bundle.link[rel=next] until the server stops returning one or maxPages is
// reached, and returns the raw entry resources for the caller
// to decode into a concrete type.
func (g *Gateway) Search(ctx context.Context, resourceType, patientID string, params map[string]string) ([]json.RawMessage, error) {
	rawURL, err := g.buildSearchURL(resourceType, patientID, params)
	if err != nil {
		return nil, err
	}

	var all []json.RawMessage
	for page := 0; page < maxPages && rawURL != ""; page++ {
		resp, err := g.get(ctx, rawURL)
		if err != nil {
			return nil, err
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, engineerr.Wrap(engineerr.KindQueryFailed, string(engineerr.QueryFailureNetwork), readErr)
		}

		var bundle Bundle
		if err := json.Unmarshal(body, &bundle); err != nil {
			return nil, engineerr.Wrap(engineerr.KindQueryFailed, string(engineerr.QueryFailureHTTP5xx),
				fmt.Errorf("decoding bundle: %w", err))
		}

		for _, entry := range bundle.Entry {
			all = append(all, entry.Resource)
		}
		rawURL = bundle.NextLink()
	}
	return all, nil
}

// SearchPatient fetches a single Patient by ID.
func (g *Gateway) SearchPatient(ctx context.Context, patientID string) (*Patient, error) {
	entries, err := g.Search(ctx, "Patient", patientID, nil)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, engineerr.New(engineerr.KindQueryFailed, string(engineerr.QueryFailureHTTP4xx)+": patient not found")
	}
	var p Patient
	if err := json.Unmarshal(entries[0], &p); err != nil {
		return nil, fmt.Errorf("fhirgw: decoding patient: %w", err)
	}
	return &p, nil
}

// SearchConditions returns all Condition resources for patientID.
func (g *Gateway) SearchConditions(ctx context.Context, patientID string, params map[string]string) ([]Condition, error) {
	entries, err := g.Search(ctx, "Condition", patientID, params)
	if err != nil {
		return nil, err
	}
	out := make([]Condition, 0, len(entries))
	for _, e := range entries {
		var c Condition
		if err := json.Unmarshal(e, &c); err != nil {
			return nil, fmt.Errorf("fhirgw: decoding condition: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// SearchObservations returns all Observation resources for patientID.
func (g *Gateway) SearchObservations(ctx context.Context, patientID string, params map[string]string) ([]Observation, error) {
	entries, err := g.Search(ctx, "Observation", patientID, params)
	if err != nil {
		return nil, err
	}
	out := make([]Observation, 0, len(entries))
	for _, e := range entries {
		var o Observation
		if err := json.Unmarshal(e, &o); err != nil {
			return nil, fmt.Errorf("fhirgw: decoding observation: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}

// SearchMedicationStatements returns all MedicationStatement resources for patientID.
func (g *Gateway) SearchMedicationStatements(ctx context.Context, patientID string, params map[string]string) ([]MedicationStatement, error) {
	entries, err := g.Search(ctx, "MedicationStatement", patientID, params)
	if err != nil {
		return nil, err
	}
	out := make([]MedicationStatement, 0, len(entries))
	for _, e := range entries {
		var m MedicationStatement
		if err := json.Unmarshal(e, &m); err != nil {
			return nil, fmt.Errorf("fhirgw: decoding medication statement: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// SearchMedicationRequests returns all MedicationRequest resources for patientID.
func (g *Gateway) SearchMedicationRequests(ctx context.Context, patientID string, params map[string]string) ([]MedicationRequest, error) {
	entries, err := g.Search(ctx, "MedicationRequest", patientID, params)
	if err != nil {
		return nil, err
	}
	out := make([]MedicationRequest, 0, len(entries))
	for _, e := range entries {
		var m MedicationRequest
		if err := json.Unmarshal(e, &m); err != nil {
			return nil, fmt.Errorf("fhirgw: decoding medication request: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// SearchAllergies returns all AllergyIntolerance resources for patientID.
func (g *Gateway) SearchAllergies(ctx context.Context, patientID string, params map[string]string) ([]AllergyIntolerance, error) {
	entries, err := g.Search(ctx, "AllergyIntolerance", patientID, params)
	if err != nil {
		return nil, err
	}
	out := make([]AllergyIntolerance, 0, len(entries))
	for _, e := range entries {
		var a AllergyIntolerance
		if err := json.Unmarshal(e, &a); err != nil {
			return nil, fmt.Errorf("fhirgw: decoding allergy intolerance: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// SearchProcedures returns all Procedure resources for patientID.
func (g *Gateway) SearchProcedures(ctx context.Context, patientID string, params map[string]string) ([]Procedure, error) {
	entries, err := g.Search(ctx, "Procedure", patientID, params)
	if err != nil {
		return nil, err
	}
	out := make([]Procedure, 0, len(entries))
	for _, e := range entries {
		var p Procedure
		if err := json.Unmarshal(e, &p); err != nil {
			return nil, fmt.Errorf("fhirgw: decoding procedure: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// SearchDiagnosticReports returns all DiagnosticReport resources for patientID.
func (g *Gateway) SearchDiagnosticReports(ctx context.Context, patientID string, params map[string]string) ([]DiagnosticReport, error) {
	entries, err := g.Search(ctx, "DiagnosticReport", patientID, params)
	if err != nil {
		return nil, err
	}
	out := make([]DiagnosticReport, 0, len(entries))
	for _, e := range entries {
		var d DiagnosticReport
		if err := json.Unmarshal(e, &d); err != nil {
			return nil, fmt.Errorf("fhirgw: decoding diagnostic report: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// SearchImmunizations returns all Immunization resources for patientID.
func (g *Gateway) SearchImmunizations(ctx context.Context, patientID string, params map[string]string) ([]Immunization, error) {
	entries, err := g.Search(ctx, "Immunization", patientID, params)
	if err != nil {
		return nil, err
	}
	out := make([]Immunization, 0, len(entries))
	for _, e := range entries {
		var im Immunization
		if err := json.Unmarshal(e, &im); err != nil {
			return nil, fmt.Errorf("fhirgw: decoding immunization: %w", err)
		}
		out = append(out, im)
	}
	return out, nil
}
