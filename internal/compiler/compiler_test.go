package compiler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/eligibility/internal/cache"
	"github.com/ehr/eligibility/internal/coding"
	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/internal/engineerr"
)

// scriptedLLM returns canned responses in sequence, recording every prompt
// it saw.
type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (s *scriptedLLM) Generate(_ context.Context, _, userPrompt string, _ float64) (string, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, userPrompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("scriptedLLM: no response scripted for call")
}

const ageCriterionJSON = `[{"type":"inclusion","category":"demographics","description":"Age between 18 and 65","attribute":"age","operator":"between","value":[18,65],"unit":"years","fhir_resource":"Patient"}]`

func newTestCompiler(client *scriptedLLM, store cache.Store) *Compiler {
	c := New(client, store, coding.New(), zerolog.Nop())
	c.Timeout = time.Second
	c.MaxRetries = 1
	c.Backoff = time.Millisecond
	return c
}

func TestCompileHappyPath(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		"Here is the structured output:\n```json\n" + ageCriterionJSON + "\n```\nLet me know if you need changes.",
	}}
	store := cache.NewMemoryStore(0)
	c := newTestCompiler(llmClient, store)

	res, err := c.Compile(context.Background(), "trial-1", "Inclusion: Age >= 18 and <= 65.")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.CacheHit {
		t.Error("first compile should not be a cache hit")
	}
	if len(res.Tree) != 1 {
		t.Fatalf("expected 1 top-level criterion, got %d", len(res.Tree))
	}
	n := res.Tree[0]
	if n.Category != criterion.CategoryDemographics || n.Operator != criterion.OpBetween {
		t.Errorf("unexpected leaf: %+v", n)
	}
	low, high, ok := n.RangeValue()
	if !ok || low != 18 || high != 65 {
		t.Errorf("expected value [18,65], got [%v,%v] ok=%v", low, high, ok)
	}
	if err := criterion.ValidateAll(res.Tree, 0); err != nil {
		t.Errorf("compiled tree must validate: %v", err)
	}
}

func TestCompileCacheHitReturnsIdenticalTree(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{ageCriterionJSON}}
	store := cache.NewMemoryStore(0)
	c := newTestCompiler(llmClient, store)
	ctx := context.Background()

	first, err := c.Compile(ctx, "trial-1", "Inclusion: Age >= 18 and <= 65.")
	if err != nil {
		t.Fatalf("first Compile: %v", err)
	}
	second, err := c.Compile(ctx, "trial-1", "Inclusion: Age >= 18 and <= 65.")
	if err != nil {
		t.Fatalf("second Compile: %v", err)
	}
	if !second.CacheHit {
		t.Error("second compile should hit the cache")
	}
	if llmClient.calls != 1 {
		t.Errorf("model should be called once, got %d", llmClient.calls)
	}

	firstJSON, _ := MarshalTree(first.Tree)
	secondJSON, _ := MarshalTree(second.Tree)
	if !bytes.Equal(firstJSON, secondJSON) {
		t.Errorf("cached tree differs from compiled tree:\n%s\nvs\n%s", firstJSON, secondJSON)
	}
}

func TestCompileEnrichesCoding(t *testing.T) {
	hba1cJSON := `[{"type":"inclusion","category":"observation","description":"HbA1c 7-10 %","attribute":"hba1c","operator":"between","value":[7,10],"unit":"%","fhir_resource":"Observation"}]`
	llmClient := &scriptedLLM{responses: []string{hba1cJSON}}
	c := newTestCompiler(llmClient, cache.NewMemoryStore(0))

	res, err := c.Compile(context.Background(), "trial-1", "Inclusion: HbA1c between 7 and 10 %.")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	n := res.Tree[0]
	if n.Coding == nil || n.Coding.Code != "4548-4" {
		t.Errorf("expected LOINC 4548-4 attached, got %+v", n.Coding)
	}
}

func TestCompileRepairRoundFixesInvalidOutput(t *testing.T) {
	// First response: NOT with two children, which the validator rejects.
	badJSON := `[{"type":"exclusion","logic_operator":"NOT","criteria":[
		{"category":"condition","description":"Pregnant","attribute":"diagnosis","operator":"contains","value":"pregnancy","fhir_resource":"Condition"},
		{"category":"condition","description":"Breastfeeding","attribute":"diagnosis","operator":"contains","value":"breastfeeding","fhir_resource":"Condition"}]}]`
	goodJSON := `[{"type":"exclusion","logic_operator":"NOT","criteria":[
		{"logic_operator":"OR","criteria":[
			{"category":"condition","description":"Pregnant","attribute":"diagnosis","operator":"contains","value":"pregnancy","fhir_resource":"Condition"},
			{"category":"condition","description":"Breastfeeding","attribute":"diagnosis","operator":"contains","value":"breastfeeding","fhir_resource":"Condition"}]}]}]`

	llmClient := &scriptedLLM{responses: []string{badJSON, goodJSON}}
	store := cache.NewMemoryStore(0)
	c := newTestCompiler(llmClient, store)

	res, err := c.Compile(context.Background(), "trial-1", "Exclusion: NOT (pregnant OR breastfeeding).")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if llmClient.calls != 2 {
		t.Fatalf("expected repair to trigger a second model call, got %d", llmClient.calls)
	}
	if !strings.Contains(llmClient.prompts[1], "failed validation") {
		t.Error("repair prompt should quote the validation failure")
	}

	n := res.Tree[0]
	if n.LogicOperator != criterion.LogicNot || len(n.Criteria) != 1 {
		t.Fatalf("expected NOT with one child, got %+v", n)
	}
	if n.Criteria[0].LogicOperator != criterion.LogicOr {
		t.Error("repaired NOT child should be the OR group")
	}
}

func TestCompileSecondRejectionFailsAndCachesNothing(t *testing.T) {
	badJSON := `[{"type":"exclusion","logic_operator":"NOT","criteria":[
		{"category":"condition","attribute":"diagnosis","operator":"contains","value":"pregnancy","fhir_resource":"Condition"},
		{"category":"condition","attribute":"diagnosis","operator":"contains","value":"breastfeeding","fhir_resource":"Condition"}]}]`

	llmClient := &scriptedLLM{responses: []string{badJSON, badJSON}}
	store := cache.NewMemoryStore(0)
	c := newTestCompiler(llmClient, store)
	ctx := context.Background()

	_, err := c.Compile(ctx, "trial-1", "Exclusion: NOT (pregnant OR breastfeeding).")
	if err == nil {
		t.Fatal("expected compile failure after failed repair")
	}
	var ee *engineerr.EngineError
	if !errors.As(err, &ee) || ee.Kind != engineerr.KindSchemaInvalid {
		t.Errorf("expected schema_invalid, got %v", err)
	}

	fp := cache.Fingerprint("trial-1", "Exclusion: NOT (pregnant OR breastfeeding).")
	if entry, _ := store.Get(ctx, fp); entry != nil {
		t.Error("failed compile must not be cached")
	}
}

func TestCompileRetriesTransientModelFailure(t *testing.T) {
	llmClient := &scriptedLLM{
		errs:      []error{errors.New("transient 503"), nil},
		responses: []string{"", ageCriterionJSON},
	}
	c := newTestCompiler(llmClient, cache.NewMemoryStore(0))

	res, err := c.Compile(context.Background(), "trial-1", "Inclusion: Age >= 18 and <= 65.")
	if err != nil {
		t.Fatalf("Compile should survive one transient failure: %v", err)
	}
	if llmClient.calls != 2 {
		t.Errorf("expected 2 model calls, got %d", llmClient.calls)
	}
	if len(res.Tree) != 1 {
		t.Errorf("expected 1 criterion, got %d", len(res.Tree))
	}
}

func TestCompilePersistentModelFailure(t *testing.T) {
	llmClient := &scriptedLLM{errs: []error{
		errors.New("503"), errors.New("503"), errors.New("503"),
	}}
	c := newTestCompiler(llmClient, cache.NewMemoryStore(0))

	_, err := c.Compile(context.Background(), "trial-1", "Inclusion: Age >= 18.")
	if err == nil {
		t.Fatal("expected failure when the model stays down")
	}
	var ee *engineerr.EngineError
	if !errors.As(err, &ee) || ee.Kind != engineerr.KindLLMUnavailable {
		t.Errorf("expected llm_unavailable, got %v", err)
	}
}

func TestCompileMalformedOutputTriggersRepairThenFails(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		"I could not produce JSON for this protocol, sorry.",
		"Still no JSON here.",
	}}
	c := newTestCompiler(llmClient, cache.NewMemoryStore(0))

	_, err := c.Compile(context.Background(), "trial-1", "Inclusion: Age >= 18.")
	if err == nil {
		t.Fatal("expected failure on prose-only output")
	}
	var ee *engineerr.EngineError
	if !errors.As(err, &ee) || ee.Kind != engineerr.KindLLMOutputMalformed {
		t.Errorf("expected llm_output_malformed, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{"bare array", ageCriterionJSON, 1, false},
		{"markdown fenced", "```json\n" + ageCriterionJSON + "\n```", 1, false},
		{"prose wrapped", "Sure! Here you go:\n" + ageCriterionJSON + "\nHope that helps.", 1, false},
		{"single object", `{"type":"inclusion","category":"demographics","attribute":"age","operator":"greater_than_or_equal","value":18,"fhir_resource":"Patient"}`, 1, false},
		{"no json at all", "I am unable to help with that.", 0, true},
		{"unbalanced", `[{"type":"inclusion"`, 0, true},
		{"unknown field rejected", `[{"type":"inclusion","category":"demographics","attribute":"age","operator":"exists","fhir_resource":"Patient","hallucinated_field":true}]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := extractJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d nodes", len(nodes))
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON: %v", err)
			}
			if len(nodes) != tt.wantLen {
				t.Errorf("got %d nodes, want %d", len(nodes), tt.wantLen)
			}
		})
	}
}
