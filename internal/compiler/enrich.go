package compiler

import (
	"strings"

	"github.com/ehr/eligibility/internal/coding"
	"github.com/ehr/eligibility/internal/criterion"
)

// Enrich walks every leaf and attaches a registry coding where the model
// left the leaf uncoded. Codings the model supplied are never touched; the
// registry only augments.
func Enrich(registry *coding.Registry, nodes []*criterion.Node) {
	for _, n := range nodes {
		criterion.Walk(n, func(node *criterion.Node, _ int) {
			if !node.IsLeaf() || node.Coding != nil {
				return
			}
			if c, ok := lookupLeaf(registry, node); ok {
				node.Coding = &criterion.Coding{System: c.System, Code: c.Code, Display: c.Display}
			}
		})
	}
}

// lookupLeaf probes the registry with the leaf's attribute, value, and
// description joined into one haystack, so "hba1c" matches whether the model
// put it in attribute or only in the description.
func lookupLeaf(registry *coding.Registry, leaf *criterion.Node) (coding.Coding, bool) {
	parts := []string{leaf.Attribute}
	if s, ok := leaf.StringValue(); ok {
		parts = append(parts, s)
	}
	parts = append(parts, leaf.Description)
	return registry.Lookup(string(leaf.Category), strings.Join(parts, " "))
}
