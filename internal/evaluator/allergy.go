package evaluator

import (
	"context"
	"strings"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/pkg/fhirmodels"
)

// evaluateAllergy queries AllergyIntolerance?patient={id}, optionally scoped
// to category=medication for drug-allergy exclusion criteria, matching
// SNOMED coding or text. A patient with zero matching records is not an
// error: the operator decides what emptiness means.
func evaluateAllergy(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (bool, string, map[string]any) {
	params := map[string]string{}
	if strings.Contains(strings.ToLower(leaf.Attribute), "medication") ||
		strings.Contains(strings.ToLower(leaf.Description), "drug") {
		params["category"] = fhirmodels.AllergyCategoryMedication
	}

	allergies, err := lc.gw.SearchAllergies(ctx, patientID, params)
	if err != nil {
		return false, queryFailedReason(err), map[string]any{}
	}

	var matched []match
	for _, a := range allergies {
		if leaf.TemporalConstraint != nil {
			pass, unknown := temporalPass(leaf.TemporalConstraint, a.RecordedDate, lc.now)
			if unknown {
				return false, "temporal_unknown", map[string]any{"allergy_id": a.ID}
			}
			if !pass {
				continue
			}
		}
		if resourceMatches(leaf, a.Code) {
			matched = append(matched, match{id: a.ID, label: labelFor(a.Code)})
		}
	}
	return applyExistence(leaf.Operator, matched, "allergy")
}
