package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ehr/eligibility/internal/criterion"
)

// evaluateDemographics computes Patient age from birthDate and applies the
// leaf's operator.
func evaluateDemographics(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (bool, string, map[string]any) {
	patient, err := lc.gw.SearchPatient(ctx, patientID)
	if err != nil {
		return false, queryFailedReason(err), map[string]any{}
	}

	if leaf.Attribute != "age" {
		return false, fmt.Sprintf("unsupported_attribute:%s", leaf.Attribute), map[string]any{}
	}
	if patient.BirthDate == "" {
		return false, "missing_birth_date", map[string]any{"patient_id": patientID}
	}

	age, err := ageFromBirthDate(patient.BirthDate, lc.now)
	if err != nil {
		return false, "invalid_birth_date", map[string]any{"birth_date": patient.BirthDate}
	}

	met, detail := compareNumeric(leaf.Operator, leaf, float64(age))
	return met, fmt.Sprintf("age %s", detail), map[string]any{
		"birth_date": patient.BirthDate,
		"age":        age,
	}
}

// ageFromBirthDate computes age = floor((today - birthDate) / 365.25)
// rather than a calendar-aware year subtraction.
func ageFromBirthDate(birthDate string, now time.Time) (int, error) {
	t, err := parseFHIRDate(birthDate)
	if err != nil {
		return 0, err
	}
	days := now.Sub(t).Hours() / 24
	return int(math.Floor(days / 365.25)), nil
}
