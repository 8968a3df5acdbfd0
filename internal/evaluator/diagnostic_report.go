package evaluator

import (
	"context"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/pkg/fhirmodels"
)

// evaluateDiagnosticReport queries
// DiagnosticReport?subject=Patient/{id}&status=final and matches on LOINC
// coding, additionally checking the report's free-text conclusion
// bidirectionally.
func evaluateDiagnosticReport(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (bool, string, map[string]any) {
	status := leaf.StatusFilter
	if status == "" {
		status = fhirmodels.ReportFinal
	}
	params := map[string]string{"status": status}

	reports, err := lc.gw.SearchDiagnosticReports(ctx, patientID, params)
	if err != nil {
		return false, queryFailedReason(err), map[string]any{}
	}

	var matched []match
	for _, r := range reports {
		if leaf.TemporalConstraint != nil {
			pass, unknown := temporalPass(leaf.TemporalConstraint, r.EffectiveDate, lc.now)
			if unknown {
				return false, "temporal_unknown", map[string]any{"diagnostic_report_id": r.ID}
			}
			if !pass {
				continue
			}
		}
		if resourceMatches(leaf, r.Code, r.Conclusion) {
			label := labelFor(r.Code)
			if label == "" {
				label = r.Conclusion
			}
			matched = append(matched, match{id: r.ID, label: label})
		}
	}
	return applyExistence(leaf.Operator, matched, "diagnostic report")
}
