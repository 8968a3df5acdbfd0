package evaluator

import (
	"context"
	"fmt"

	"github.com/ehr/eligibility/internal/criterion"
)

// evaluateObservation extracts Observation.valueQuantity and applies the
// leaf's numeric operator, or falls back to existence-style matching for
// non-numeric operators.
// ECOG and Karnofsky are handled here under category=observation.
func evaluateObservation(ctx context.Context, lc *leafContext, leaf *criterion.Node, patientID string) (bool, string, map[string]any) {
	params := map[string]string{}
	if leaf.Coding != nil && leaf.Coding.Code != "" {
		params["code"] = leaf.Coding.Code
	}

	observations, err := lc.gw.SearchObservations(ctx, patientID, params)
	if err != nil {
		return false, queryFailedReason(err), map[string]any{}
	}

	wantsNumeric := numericOperator(leaf.Operator)
	var matched []match
	for _, o := range observations {
		if !resourceMatches(leaf, o.Code) {
			continue
		}
		if leaf.TemporalConstraint != nil {
			pass, unknown := temporalPass(leaf.TemporalConstraint, o.EffectiveDate, lc.now)
			if unknown {
				return false, "temporal_unknown", map[string]any{"observation_id": o.ID}
			}
			if !pass {
				continue
			}
		}

		if !wantsNumeric {
			matched = append(matched, match{id: o.ID, label: labelFor(o.Code)})
			continue
		}
		if o.ValueQuantity == nil {
			continue
		}
		met, detail := compareNumeric(leaf.Operator, leaf, o.ValueQuantity.Value)
		reason := fmt.Sprintf("%s %s", detail, o.ValueQuantity.Unit)
		if leaf.Attribute != "" {
			reason = fmt.Sprintf("%s %s", leaf.Attribute, reason)
		}
		return met, reason, map[string]any{
			"observation_id": o.ID,
			"value":          o.ValueQuantity.Value,
			"unit":           o.ValueQuantity.Unit,
			"date":           o.EffectiveDate,
		}
	}

	if wantsNumeric {
		return false, "no_matching_observation", map[string]any{}
	}
	return applyExistence(leaf.Operator, matched, "observation")
}
