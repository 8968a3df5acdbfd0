package evaluator

import (
	"context"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/pkg/fhirmodels"
)

// evaluateMedication queries MedicationStatement?subject=Patient/{id}&status=active
// and matches RxNorm-first, text-fallback, fuzzy on medication name and drug
// class.
func evaluateMedication(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (bool, string, map[string]any) {
	status := leaf.StatusFilter
	if status == "" {
		status = fhirmodels.MedStatementActive
	}
	params := map[string]string{"status": status}

	statements, err := lc.gw.SearchMedicationStatements(ctx, patientID, params)
	if err != nil {
		return false, queryFailedReason(err), map[string]any{}
	}

	var matched []match
	for _, m := range statements {
		if leaf.TemporalConstraint != nil {
			pass, unknown := temporalPass(leaf.TemporalConstraint, m.EffectiveDate, lc.now)
			if unknown {
				return false, "temporal_unknown", map[string]any{"medication_statement_id": m.ID}
			}
			if !pass {
				continue
			}
		}
		if resourceMatches(leaf, m.MedicationCode) {
			matched = append(matched, match{id: m.ID, label: labelFor(m.MedicationCode)})
		}
	}
	return applyExistence(leaf.Operator, matched, "medication")
}
