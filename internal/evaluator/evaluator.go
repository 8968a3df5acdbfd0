// Package evaluator is the Criterion Tree Evaluator and its Leaf Evaluators
//: it walks a validated criterion.Node tree against one
// patient's FHIR resources and produces a per-node verdict.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/internal/engineerr"
	"github.com/ehr/eligibility/internal/fhirgw"
)

// Result is one ResultNode in the wire form: a leaf carries
// Evidence, a group carries SubResults, never both populated meaningfully.
type Result struct {
	Criterion  *criterion.Node `json:"criterion"`
	Met        bool            `json:"met"`
	Reason     string          `json:"reason"`
	Evidence   map[string]any  `json:"evidence,omitempty"`
	SubResults []*Result       `json:"sub_results,omitempty"`
}

// Evaluator walks criterion trees against a fhirgw.Reader. It holds no
// per-invocation state, matching the FHIR Gateway's own statelessness.
type Evaluator struct {
	Gateway        fhirgw.Reader
	MaxDepth       int
	MaxConcurrency int
	// Now is the clock leaf evaluators use for age and temporal-window
	// computation; defaults to time.Now and is overridden in tests.
	Now    func() time.Time
	Logger zerolog.Logger
}

// New constructs an Evaluator. maxDepth <= 0 falls back to
// criterion.DefaultMaxDepth; maxConcurrency <= 0 falls back to 1 (fully
// sequential dispatch).
func New(gw fhirgw.Reader, maxDepth, maxConcurrency int, logger zerolog.Logger) *Evaluator {
	if maxDepth <= 0 {
		maxDepth = criterion.DefaultMaxDepth
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Evaluator{
		Gateway:        gw,
		MaxDepth:       maxDepth,
		MaxConcurrency: maxConcurrency,
		Now:            time.Now,
		Logger:         logger,
	}
}

func (e *Evaluator) clock() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// EvaluateAll walks each top-level node against patientID, preserving input
// order in the returned slice regardless of whether children were dispatched
// concurrently.
//
// A depth_exceeded error aborts the whole call; every other per-leaf failure is
// captured in that leaf's Result and does not abort its siblings.
func (e *Evaluator) EvaluateAll(ctx context.Context, nodes []*criterion.Node, patientID string) ([]*Result, error) {
	lc := &leafContext{gw: e.Gateway, now: e.clock(), patientID: patientID}
	results := make([]*Result, len(nodes))
	for i, n := range nodes {
		r, err := e.evaluateNode(ctx, lc, n, criterion.TypeInclusion, 1)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}

func (e *Evaluator) evaluateNode(ctx context.Context, lc *leafContext, n *criterion.Node, inherited criterion.Type, depth int) (*Result, error) {
	if depth > e.MaxDepth {
		return nil, engineerr.New(engineerr.KindDepthExceeded,
			fmt.Sprintf("depth %d exceeds max %d", depth, e.MaxDepth))
	}
	effType := n.EffectiveType(inherited)
	if n.IsLeaf() {
		return evaluateLeaf(ctx, lc, n), nil
	}
	return e.evaluateGroup(ctx, lc, n, effType, depth)
}

// evaluateGroup dispatches children through a bounded pool and then
// combines them with the same AND/OR/NOT semantics a fully sequential,
// short-circuiting walk would produce.
func (e *Evaluator) evaluateGroup(ctx context.Context, lc *leafContext, n *criterion.Node, effType criterion.Type, depth int) (*Result, error) {
	children := n.Criteria
	type outcome struct {
		result *Result
		err    error
	}
	outcomes := runBounded(len(children), e.MaxConcurrency, func(i int) outcome {
		r, err := e.evaluateNode(ctx, lc, children[i], effType, depth+1)
		return outcome{result: r, err: err}
	})

	childResults := make([]*Result, len(outcomes))
	for i, o := range outcomes {
		if o.err != nil {
			return nil, o.err
		}
		childResults[i] = o.result
	}

	met, reason := combine(n.LogicOperator, childResults)
	return &Result{Criterion: n, Met: met, Reason: reason, SubResults: childResults}, nil
}

// combine applies the group's logic_operator in source order:
// AND stops conceptually at the first unmet child, OR at the first met
// child, NOT inverts its single child.
func combine(op criterion.LogicOperator, children []*Result) (bool, string) {
	switch op {
	case criterion.LogicAnd:
		for _, c := range children {
			if !c.Met {
				return false, fmt.Sprintf("AND: unmet at %q (%s)", childLabel(c), c.Reason)
			}
		}
		return true, "AND: all children met"
	case criterion.LogicOr:
		for _, c := range children {
			if c.Met {
				return true, fmt.Sprintf("OR: met via %q (%s)", childLabel(c), c.Reason)
			}
		}
		return false, "OR: no child met"
	case criterion.LogicNot:
		if len(children) == 0 {
			return false, "NOT: missing child"
		}
		c := children[0]
		return !c.Met, fmt.Sprintf("NOT: child %s", c.Reason)
	default:
		return false, fmt.Sprintf("unsupported_logic_operator:%s", op)
	}
}

func childLabel(r *Result) string {
	if r.Criterion != nil && r.Criterion.Description != "" {
		return r.Criterion.Description
	}
	if r.Criterion != nil {
		return string(r.Criterion.Category)
	}
	return ""
}

// Summary counts inclusion/exclusion outcomes for the report header.
type Summary struct {
	InclusionMet      int `json:"inclusion_met"`
	InclusionTotal    int `json:"inclusion_total"`
	ExclusionViolated int `json:"exclusion_violated"`
	ExclusionTotal    int `json:"exclusion_total"`
}

// Verdict computes the top-level eligibility decision from a list of
// top-level Results: eligible iff every inclusion result is
// met and no exclusion result is met. Confidence is the fraction of
// inclusion criteria met, as a transparent ratio rather than a probability.
func Verdict(results []*Result) (eligible bool, confidence int, summary Summary) {
	eligible = true
	for _, r := range results {
		if r.Criterion == nil {
			continue
		}
		switch r.Criterion.Type {
		case criterion.TypeInclusion:
			summary.InclusionTotal++
			if r.Met {
				summary.InclusionMet++
			} else {
				eligible = false
			}
		case criterion.TypeExclusion:
			summary.ExclusionTotal++
			if r.Met {
				summary.ExclusionViolated++
				eligible = false
			}
		}
	}
	if summary.InclusionTotal > 0 {
		confidence = int(float64(summary.InclusionMet) / float64(summary.InclusionTotal) * 100)
	}
	return eligible, confidence, summary
}
