package evaluator

import (
	"context"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/pkg/fhirmodels"
)

// evaluateCondition queries Condition?subject=Patient/{id}&clinical-status=active
// (default) and matches on ICD-10-CM/SNOMED coding, falling back to text.
func evaluateCondition(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (bool, string, map[string]any) {
	status := leaf.StatusFilter
	if status == "" {
		status = fhirmodels.ConditionActive
	}
	params := map[string]string{"clinical-status": status}

	conditions, err := lc.gw.SearchConditions(ctx, patientID, params)
	if err != nil {
		return false, queryFailedReason(err), map[string]any{}
	}

	var matched []match
	for _, c := range conditions {
		if leaf.TemporalConstraint != nil {
			date := c.OnsetDateTime
			if date == "" {
				date = c.RecordedDate
			}
			pass, unknown := temporalPass(leaf.TemporalConstraint, date, lc.now)
			if unknown {
				return false, "temporal_unknown", map[string]any{"condition_id": c.ID}
			}
			if !pass {
				continue
			}
		}
		if resourceMatches(leaf, c.Code) {
			matched = append(matched, match{id: c.ID, label: labelFor(c.Code)})
		}
	}
	return applyExistence(leaf.Operator, matched, "condition")
}
