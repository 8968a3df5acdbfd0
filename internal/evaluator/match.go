package evaluator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/internal/fhirgw"
)

// codingMatches reports whether any of codings contains an exact
// (system, code) match for leaf's coding.
func codingMatches(leaf *criterion.Coding, codings []fhirgw.Coding) bool {
	if leaf == nil {
		return false
	}
	for _, c := range codings {
		if c.System == leaf.System && c.Code == leaf.Code {
			return true
		}
	}
	return false
}

// bidirectionalMatch is a whole-phrase bidirectional substring match: true
// if either string contains the other
// after lowercasing and whitespace-normalizing both sides. This intentionally
// matches generic-to-brand and brand-to-generic ("statin" <-> "atorvastatin")
// while declining short partials that happen to be substrings by accident.
func bidirectionalMatch(needle, haystack string) bool {
	n := normalizeText(needle)
	h := normalizeText(haystack)
	if n == "" || h == "" {
		return false
	}
	if n == h {
		return true
	}
	// Containment only counts when the contained phrase is long enough to
	// be a real term: 3-letter drug stems ("met") must not fire against
	// "metformin".
	if len(n) >= minPartialLen && strings.Contains(h, n) {
		return true
	}
	return len(h) >= minPartialLen && strings.Contains(n, h)
}

// minPartialLen is the shortest phrase allowed to match by containment.
const minPartialLen = 4

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// resourceMatches applies the full matching policy: a
// leaf carrying a coding matches only on exact coding equality; a leaf
// without one falls back to bidirectional substring match against the
// CodeableConcept's text, its codings' display strings, and any extra free
// text the caller supplies (e.g. DiagnosticReport.conclusion).
func resourceMatches(leaf *criterion.Node, cc *fhirgw.CodeableConcept, extraText ...string) bool {
	if leaf.Coding != nil {
		if cc == nil {
			return false
		}
		return codingMatches(leaf.Coding, cc.Coding)
	}

	v, ok := leaf.StringValue()
	if !ok {
		return false
	}
	if cc != nil {
		if bidirectionalMatch(v, cc.Text) {
			return true
		}
		for _, c := range cc.Coding {
			if bidirectionalMatch(v, c.Display) {
				return true
			}
		}
	}
	for _, t := range extraText {
		if bidirectionalMatch(v, t) {
			return true
		}
	}
	return false
}

// numericOperator reports whether op compares a scalar/range numeric value,
// as opposed to the existence-style operators.
func numericOperator(op criterion.Operator) bool {
	switch op {
	case criterion.OpBetween, criterion.OpGreaterThan, criterion.OpGreaterThanOrEqual,
		criterion.OpLessThan, criterion.OpLessThanOrEqual, criterion.OpEquals:
		return true
	default:
		return false
	}
}

// compareNumeric applies a numeric operator to an observed value against the
// leaf's scalar or [low, high] value, returning a short
// reason fragment a caller prefixes with the attribute/date context.
func compareNumeric(op criterion.Operator, leaf *criterion.Node, observed float64) (bool, string) {
	switch op {
	case criterion.OpBetween:
		low, high, ok := leaf.RangeValue()
		if !ok {
			return false, "invalid_range"
		}
		met := observed >= low && observed <= high
		return met, fmt.Sprintf("%s in [%s,%s]", fmtNum(observed), fmtNum(low), fmtNum(high))
	case criterion.OpGreaterThan, criterion.OpGreaterThanOrEqual, criterion.OpLessThan, criterion.OpLessThanOrEqual, criterion.OpEquals:
		v, ok := leaf.ScalarValue()
		if !ok {
			return false, "invalid_value"
		}
		var met bool
		switch op {
		case criterion.OpGreaterThan:
			met = observed > v
		case criterion.OpGreaterThanOrEqual:
			met = observed >= v
		case criterion.OpLessThan:
			met = observed < v
		case criterion.OpLessThanOrEqual:
			met = observed <= v
		case criterion.OpEquals:
			met = observed == v
		}
		return met, fmt.Sprintf("%s %s %s", fmtNum(observed), opSymbol(op), fmtNum(v))
	default:
		return false, fmt.Sprintf("unsupported_operator:%s", op)
	}
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func opSymbol(op criterion.Operator) string {
	switch op {
	case criterion.OpGreaterThan:
		return ">"
	case criterion.OpGreaterThanOrEqual:
		return ">="
	case criterion.OpLessThan:
		return "<"
	case criterion.OpLessThanOrEqual:
		return "<="
	case criterion.OpEquals:
		return "=="
	default:
		return string(op)
	}
}

// labelFor renders a CodeableConcept as a short human label for reasons,
// preferring free text then the first coding's display.
func labelFor(cc *fhirgw.CodeableConcept) string {
	if cc == nil {
		return ""
	}
	if cc.Text != "" {
		return cc.Text
	}
	if len(cc.Coding) > 0 {
		return cc.Coding[0].Display
	}
	return ""
}

func formatQuantity(q *fhirgw.Quantity) string {
	if q == nil {
		return ""
	}
	return fmt.Sprintf("%s %s", fmtNum(q.Value), q.Unit)
}
