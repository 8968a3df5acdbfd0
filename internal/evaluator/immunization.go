package evaluator

import (
	"context"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/pkg/fhirmodels"
)

// evaluateImmunization queries Immunization?patient={id}&status=completed and
// matches CVX coding or a fuzzy vaccine name.
func evaluateImmunization(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (bool, string, map[string]any) {
	status := leaf.StatusFilter
	if status == "" {
		status = fhirmodels.ImmunizationCompleted
	}
	params := map[string]string{"status": status}

	immunizations, err := lc.gw.SearchImmunizations(ctx, patientID, params)
	if err != nil {
		return false, queryFailedReason(err), map[string]any{}
	}

	var matched []match
	for _, im := range immunizations {
		if leaf.TemporalConstraint != nil {
			pass, unknown := temporalPass(leaf.TemporalConstraint, im.OccurrenceDate, lc.now)
			if unknown {
				return false, "temporal_unknown", map[string]any{"immunization_id": im.ID}
			}
			if !pass {
				continue
			}
		}
		if resourceMatches(leaf, im.VaccineCode) {
			matched = append(matched, match{id: im.ID, label: labelFor(im.VaccineCode)})
		}
	}
	return applyExistence(leaf.Operator, matched, "immunization")
}
