package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/internal/engineerr"
	"github.com/ehr/eligibility/internal/fhirgw"
)

// leafContext carries the per-invocation collaborators every Leaf Evaluator
// needs, so individual evaluator functions stay free of Evaluator's pooling
// concerns.
type leafContext struct {
	gw        fhirgw.Reader
	now       time.Time
	patientID string
}

// leafFunc is the common signature every Leaf Evaluator implements:
// evaluate(leaf, patient_id) -> (met, reason, evidence).
type leafFunc func(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (met bool, reason string, evidence map[string]any)

// dispatchTable routes a leaf to its evaluator by category.
// performance_status shares evaluateObservation with observation; ECOG and
// Karnofsky are plain coded observations either way.
var dispatchTable = map[criterion.Category]leafFunc{
	criterion.CategoryDemographics:     evaluateDemographics,
	criterion.CategoryCondition:        evaluateCondition,
	criterion.CategoryObservation:      evaluateObservation,
	criterion.CategoryPerformanceStat:  evaluateObservation,
	criterion.CategoryMedication:       evaluateMedication,
	criterion.CategoryMedicationReq:    evaluateMedicationRequest,
	criterion.CategoryAllergy:          evaluateAllergy,
	criterion.CategoryProcedure:        evaluateProcedure,
	criterion.CategoryDiagnosticReport: evaluateDiagnosticReport,
	criterion.CategoryImmunization:     evaluateImmunization,
}

// evaluateLeaf dispatches a single leaf and guarantees the tree walk never
// aborts on it: an unknown category or a panic inside the evaluator both
// degrade to an evaluator_error result.
func evaluateLeaf(ctx context.Context, lc *leafContext, leaf *criterion.Node) (result *Result) {
	result = &Result{Criterion: leaf}

	fn, ok := dispatchTable[leaf.Category]
	if !ok {
		result.Reason = engineerr.EvaluatorError(string(leaf.Category))
		return result
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.Met = false
			result.Reason = engineerr.EvaluatorError(string(leaf.Category))
			result.Evidence = map[string]any{"panic": fmt.Sprintf("%v", rec)}
		}
	}()

	met, reason, evidence := fn(ctx, lc, leaf, lc.patientID)
	result.Met = met
	result.Reason = reason
	result.Evidence = evidence
	return result
}

// queryFailedReason renders a Gateway error as a query_failed reason
// string; any error the Gateway didn't already tag is treated as a
// network failure rather than silently declaring the criterion met.
func queryFailedReason(err error) string {
	var ee *engineerr.EngineError
	if errors.As(err, &ee) && ee.Kind == engineerr.KindQueryFailed {
		return ee.Reason()
	}
	return engineerr.QueryFailed(engineerr.QueryFailureNetwork)
}

// match is one resource a leaf evaluator found to satisfy resourceMatches,
// carrying enough to cite in a human-readable reason.
type match struct {
	id    string
	label string // e.g. "Atorvastatin 40 mg", "CT Chest"
}

// applyExistence implements the exists/contains/not_exists/not_contains
// operators common to most leaf categories: met iff at
// least one (or, for the negated pair, exactly zero) resource matched. The
// reason cites the first match's label when one is available.
func applyExistence(op criterion.Operator, matches []match, noun string) (bool, string, map[string]any) {
	found := len(matches) > 0
	evidence := map[string]any{}
	if found {
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.id
		}
		evidence["matched_ids"] = ids
	}

	cite := func() string {
		if found && matches[0].label != "" {
			return fmt.Sprintf(" (%s)", matches[0].label)
		}
		return ""
	}

	switch op {
	case criterion.OpExists, criterion.OpContains:
		if found {
			return true, fmt.Sprintf("%s matched%s (%d found)", noun, cite(), len(matches)), evidence
		}
		return false, fmt.Sprintf("no matching %s found", noun), evidence
	case criterion.OpNotExists, criterion.OpNotContains:
		if found {
			return false, fmt.Sprintf("%s matched%s (%d found)", noun, cite(), len(matches)), evidence
		}
		return true, fmt.Sprintf("no matching %s found", noun), evidence
	default:
		return false, fmt.Sprintf("unsupported_operator:%s", op), evidence
	}
}
