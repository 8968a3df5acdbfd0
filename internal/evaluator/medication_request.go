package evaluator

import (
	"context"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/pkg/fhirmodels"
)

// evaluateMedicationRequest queries
// MedicationRequest?subject=Patient/{id}&status=active&intent=order with the
// same matching policy as evaluateMedication.
func evaluateMedicationRequest(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (bool, string, map[string]any) {
	status := leaf.StatusFilter
	if status == "" {
		status = fhirmodels.MedRequestActive
	}
	params := map[string]string{"status": status, "intent": fhirmodels.MedRequestIntentOrder}

	requests, err := lc.gw.SearchMedicationRequests(ctx, patientID, params)
	if err != nil {
		return false, queryFailedReason(err), map[string]any{}
	}

	var matched []match
	for _, r := range requests {
		if leaf.TemporalConstraint != nil {
			pass, unknown := temporalPass(leaf.TemporalConstraint, r.AuthoredOn, lc.now)
			if unknown {
				return false, "temporal_unknown", map[string]any{"medication_request_id": r.ID}
			}
			if !pass {
				continue
			}
		}
		if resourceMatches(leaf, r.MedicationCode) {
			matched = append(matched, match{id: r.ID, label: labelFor(r.MedicationCode)})
		}
	}
	return applyExistence(leaf.Operator, matched, "medication request")
}
