package compiler

import (
	"encoding/json"
	"strings"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/internal/engineerr"
)

// extractJSON pulls the criterion nodes out of a model response that may
// wrap the JSON in prose or markdown fences. It scans for the largest
// well-balanced top-level array or object, preferring arrays (the requested
// shape); a bare object is accepted and wrapped as a single-element list.
func extractJSON(response string) ([]*criterion.Node, error) {
	response = stripFences(response)

	candidates := balancedSpans(response)
	if len(candidates) == 0 {
		return nil, engineerr.New(engineerr.KindLLMOutputMalformed, "no JSON array or object in model output")
	}

	// Longest candidate first: prose around the payload produces shorter
	// incidental spans (e.g. "[sic]") that must not win.
	var lastErr error
	for _, span := range candidates {
		if strings.HasPrefix(span, "[") {
			var nodes []*criterion.Node
			if err := strictUnmarshal(span, &nodes); err != nil {
				lastErr = err
				continue
			}
			return nodes, nil
		}
		var node criterion.Node
		if err := strictUnmarshal(span, &node); err != nil {
			lastErr = err
			continue
		}
		return []*criterion.Node{&node}, nil
	}
	return nil, engineerr.Wrap(engineerr.KindLLMOutputMalformed, "no candidate span parsed", lastErr)
}

// strictUnmarshal rejects unknown fields so a hallucinated shape fails here
// rather than being silently dropped by the decoder.
func strictUnmarshal(data string, v any) error {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// stripFences removes ```json ... ``` markdown fences, a habit the model
// keeps despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// balancedSpans returns every top-level balanced {...} or [...] span in s,
// longest first, tracking strings and escapes so braces inside quoted text
// don't end a span early.
func balancedSpans(s string) []string {
	var spans []string
	for i := 0; i < len(s); i++ {
		open := s[i]
		if open != '{' && open != '[' {
			continue
		}
		if end := matchBalanced(s, i); end > i {
			spans = append(spans, s[i:end+1])
			i = end
		}
	}
	// Insertion sort by descending length; span counts are tiny.
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && len(spans[j]) > len(spans[j-1]); j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
	return spans
}

// matchBalanced returns the index of the bracket closing s[start], or -1.
func matchBalanced(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
