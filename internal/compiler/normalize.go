package compiler

import (
	"strings"

	"github.com/ehr/eligibility/internal/criterion"
)

// operatorAliases maps the symbol and loose-word forms the model sometimes
// emits onto the closed operator vocabulary.
var operatorAliases = map[string]criterion.Operator{
	"=":      criterion.OpEquals,
	"==":     criterion.OpEquals,
	"eq":     criterion.OpEquals,
	">":      criterion.OpGreaterThan,
	"gt":     criterion.OpGreaterThan,
	">=":     criterion.OpGreaterThanOrEqual,
	"gte":    criterion.OpGreaterThanOrEqual,
	"<":      criterion.OpLessThan,
	"lt":     criterion.OpLessThan,
	"<=":     criterion.OpLessThanOrEqual,
	"lte":    criterion.OpLessThanOrEqual,
	"range":  criterion.OpBetween,
	"in":     criterion.OpContains,
	"has":    criterion.OpExists,
	"absent": criterion.OpNotExists,
}

// unitAliases collapses common spelling variants of the units the leaf
// evaluators compare on.
var unitAliases = map[string]string{
	"percent":  "%",
	"pct":      "%",
	"mg/dl":    "mg/dL",
	"ml/min":   "mL/min",
	"mmol/l":   "mmol/L",
	"years":    "years",
	"year":     "years",
	"yrs":      "years",
	"yr":       "years",
	"months":   "months",
	"month":    "months",
	"weeks":    "weeks",
	"week":     "weeks",
	"days":     "days",
	"day":      "days",
}

// Normalize rewrites a freshly decoded node list into canonical form:
// singleton groups unwrapped, same-operator nesting flattened, group types
// propagated to children, operator and unit aliases resolved. It is
// idempotent: normalizing an already normal tree changes nothing.
func Normalize(nodes []*criterion.Node) []*criterion.Node {
	out := make([]*criterion.Node, 0, len(nodes))
	for _, n := range nodes {
		n = normalizeNode(n)
		if n == nil {
			continue
		}
		// Top-level nodes must carry an explicit type; default the tag the
		// way protocol text defaults: an untagged criterion is inclusion.
		if n.Type == "" {
			n.Type = criterion.TypeInclusion
		}
		propagateType(n, n.Type)
		out = append(out, n)
	}
	return out
}

func normalizeNode(n *criterion.Node) *criterion.Node {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		normalizeLeaf(n)
		return n
	}

	n.LogicOperator = criterion.LogicOperator(strings.ToUpper(strings.TrimSpace(string(n.LogicOperator))))

	children := make([]*criterion.Node, 0, len(n.Criteria))
	for _, c := range n.Criteria {
		c = normalizeNode(c)
		if c == nil {
			continue
		}
		// {AND,[{AND,[X,Y]},Z]} -> {AND,[X,Y,Z]}. NOT never absorbs.
		if c.IsGroup() && c.LogicOperator == n.LogicOperator && n.LogicOperator != criterion.LogicNot {
			for _, gc := range c.Criteria {
				if c.Type != "" {
					propagateType(gc, c.Type)
				}
				children = append(children, gc)
			}
			continue
		}
		children = append(children, c)
	}
	n.Criteria = children

	// {AND,[X]} -> X, keeping the group's type/description when the child
	// has none of its own.
	if len(n.Criteria) == 1 && n.LogicOperator != criterion.LogicNot {
		child := n.Criteria[0]
		if child.Type == "" {
			child.Type = n.Type
		}
		if child.Description == "" {
			child.Description = n.Description
		}
		return child
	}
	return n
}

func normalizeLeaf(n *criterion.Node) {
	op := strings.ToLower(strings.TrimSpace(string(n.Operator)))
	if alias, ok := operatorAliases[op]; ok {
		n.Operator = alias
	} else {
		n.Operator = criterion.Operator(op)
	}

	unit := strings.TrimSpace(n.Unit)
	if alias, ok := unitAliases[strings.ToLower(unit)]; ok {
		unit = alias
	}
	n.Unit = unit

	if n.StatusFilter != "" {
		n.StatusFilter = strings.ToLower(strings.TrimSpace(n.StatusFilter))
	}
	if n.TemporalConstraint != nil {
		tc := n.TemporalConstraint
		if alias, ok := unitAliases[strings.ToLower(strings.TrimSpace(tc.Unit))]; ok {
			tc.Unit = alias
		}
	}
}

// propagateType fills in missing type tags downward without overwriting an
// explicit tag.
func propagateType(n *criterion.Node, t criterion.Type) {
	if n == nil {
		return
	}
	if n.Type == "" {
		n.Type = t
	}
	for _, c := range n.Criteria {
		propagateType(c, n.Type)
	}
}
