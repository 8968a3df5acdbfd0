package evaluator

import (
	"context"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/pkg/fhirmodels"
)

// evaluateProcedure queries Procedure?subject=Patient/{id}&status=completed
// and matches CPT/SNOMED/ICD-10-PCS coding, falling back to text.
func evaluateProcedure(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (bool, string, map[string]any) {
	status := leaf.StatusFilter
	if status == "" {
		status = fhirmodels.ProcedureCompleted
	}
	params := map[string]string{"status": status}

	procedures, err := lc.gw.SearchProcedures(ctx, patientID, params)
	if err != nil {
		return false, queryFailedReason(err), map[string]any{}
	}

	var matched []match
	for _, p := range procedures {
		if leaf.TemporalConstraint != nil {
			pass, unknown := temporalPass(leaf.TemporalConstraint, p.PerformedDateTime, lc.now)
			if unknown {
				return false, "temporal_unknown", map[string]any{"procedure_id": p.ID}
			}
			if !pass {
				continue
			}
		}
		if resourceMatches(leaf, p.Code) {
			matched = append(matched, match{id: p.ID, label: labelFor(p.Code)})
		}
	}
	return applyExistence(leaf.Operator, matched, "procedure")
}
