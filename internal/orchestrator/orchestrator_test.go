package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/eligibility/internal/cache"
	"github.com/ehr/eligibility/internal/coding"
	"github.com/ehr/eligibility/internal/compiler"
	"github.com/ehr/eligibility/internal/evaluator"
	"github.com/ehr/eligibility/internal/fhirgw"
	"github.com/ehr/eligibility/internal/fhirgw/fhirgwtest"
)

// scriptedLLM returns canned responses in sequence.
type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Generate(_ context.Context, _, _ string, _ float64) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("scriptedLLM: no response scripted")
}

// diabetesTrialJSON is the compiled form of "Inclusion: (type 2 diabetes OR
// pre-diabetes) AND ECOG 0-1. Exclusion: currently on insulin."
const diabetesTrialJSON = `[
  {"logic_operator":"AND","type":"inclusion","criteria":[
    {"logic_operator":"OR","criteria":[
      {"category":"condition","description":"Type 2 diabetes","attribute":"diagnosis","operator":"contains","value":"type 2 diabetes","fhir_resource":"Condition"},
      {"category":"condition","description":"Pre-diabetes","attribute":"diagnosis","operator":"contains","value":"pre-diabetes","fhir_resource":"Condition"}]},
    {"category":"observation","description":"ECOG 0-1","attribute":"ecog","operator":"between","value":[0,1],"fhir_resource":"Observation"}]},
  {"type":"exclusion","category":"medication","description":"Currently on insulin","attribute":"medication_name","operator":"contains","value":"insulin","fhir_resource":"MedicationStatement","status_filter":"active"}]`

func diabeticPatient() *fhirgwtest.Fake {
	return &fhirgwtest.Fake{
		Patient: &fhirgw.Patient{
			Resource:  fhirgw.Resource{ResourceType: "Patient", ID: "pat-1"},
			BirthDate: "1979-05-15",
		},
		Conditions: []fhirgw.Condition{{
			Resource: fhirgw.Resource{ResourceType: "Condition", ID: "cond-1"},
			Code: &fhirgw.CodeableConcept{
				Coding: []fhirgw.Coding{{System: coding.SystemICD10CM, Code: "E11", Display: "Type 2 diabetes mellitus"}},
				Text:   "Type 2 diabetes",
			},
		}},
		Observations: []fhirgw.Observation{{
			Resource: fhirgw.Resource{ResourceType: "Observation", ID: "obs-1"},
			Code: &fhirgw.CodeableConcept{
				Coding: []fhirgw.Coding{{System: coding.SystemLOINC, Code: "89247-1", Display: "ECOG Performance Status"}},
				Text:   "ECOG performance status",
			},
			ValueQuantity: &fhirgw.Quantity{Value: 1, Unit: "{score}"},
		}},
	}
}

func newTestOrchestrator(llmClient *scriptedLLM, fake *fhirgwtest.Fake) *Orchestrator {
	comp := compiler.New(llmClient, cache.NewMemoryStore(0), coding.New(), zerolog.Nop())
	comp.Backoff = time.Millisecond
	ev := evaluator.New(fake, 0, 1, zerolog.Nop())
	ev.Now = func() time.Time { return time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC) }
	return New(comp, ev, zerolog.Nop())
}

func TestEvaluateEndToEnd(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{diabetesTrialJSON}}
	o := newTestOrchestrator(llmClient, diabeticPatient())

	report, err := o.Evaluate(context.Background(), "trial-dm2", "Inclusion: (type 2 diabetes OR pre-diabetes) AND ECOG 0-1. Exclusion: currently on insulin.", "pat-1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if !report.Eligible {
		t.Errorf("expected eligible patient, summary=%+v results[0].reason=%q", report.Summary, report.Results[0].Reason)
	}
	if report.Confidence != 100 {
		t.Errorf("confidence: got %d, want 100", report.Confidence)
	}
	if report.Summary.InclusionMet != 1 || report.Summary.InclusionTotal != 1 {
		t.Errorf("inclusion summary: %+v", report.Summary)
	}
	if report.Summary.ExclusionViolated != 0 || report.Summary.ExclusionTotal != 1 {
		t.Errorf("exclusion summary: %+v", report.Summary)
	}
	if report.CacheHit {
		t.Error("first evaluation should not hit the cache")
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 top-level results, got %d", len(report.Results))
	}
	if !report.Results[0].Met {
		t.Errorf("inclusion group unmet: %s", report.Results[0].Reason)
	}
	if report.Results[1].Met {
		t.Errorf("insulin exclusion should be unmet: %s", report.Results[1].Reason)
	}
	if report.PatientID != "pat-1" || report.TrialID != "trial-dm2" {
		t.Errorf("report identifiers wrong: %+v", report)
	}
}

func TestEvaluateCacheHitOnSecondInvocation(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{diabetesTrialJSON}}
	o := newTestOrchestrator(llmClient, diabeticPatient())
	ctx := context.Background()

	text := "Inclusion: (type 2 diabetes OR pre-diabetes) AND ECOG 0-1. Exclusion: currently on insulin."
	if _, err := o.Evaluate(ctx, "trial-dm2", text, "pat-1"); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	report, err := o.Evaluate(ctx, "trial-dm2", text, "pat-2")
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if !report.CacheHit {
		t.Error("second evaluation should reuse the compiled tree")
	}
	if llmClient.calls != 1 {
		t.Errorf("model should be invoked once, got %d", llmClient.calls)
	}
}

func TestEvaluateExclusionViolatedMakesIneligible(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{diabetesTrialJSON}}
	fake := diabeticPatient()
	fake.MedicationStatements = []fhirgw.MedicationStatement{{
		Resource: fhirgw.Resource{ResourceType: "MedicationStatement", ID: "med-1"},
		Status:   "active",
		MedicationCode: &fhirgw.CodeableConcept{
			Coding: []fhirgw.Coding{{System: coding.SystemRxNorm, Code: "5856", Display: "Insulin"}},
			Text:   "Insulin glargine 100 units/mL",
		},
	}}
	o := newTestOrchestrator(llmClient, fake)

	report, err := o.Evaluate(context.Background(), "trial-dm2", "criteria", "pat-1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Eligible {
		t.Error("insulin user must be ineligible")
	}
	if report.Summary.ExclusionViolated != 1 {
		t.Errorf("exclusion summary: %+v", report.Summary)
	}
	// Confidence tracks inclusion criteria only.
	if report.Confidence != 100 {
		t.Errorf("confidence: got %d, want 100", report.Confidence)
	}
}

type recordingSink struct {
	saved []*EligibilityReport
	err   error
}

func (s *recordingSink) Save(_ context.Context, r *EligibilityReport) error {
	s.saved = append(s.saved, r)
	return s.err
}

func TestEvaluateInvokesReportSink(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{diabetesTrialJSON}}
	o := newTestOrchestrator(llmClient, diabeticPatient())
	sink := &recordingSink{}
	o.SetReportSink(sink)

	report, err := o.Evaluate(context.Background(), "trial-dm2", "criteria", "pat-1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(sink.saved) != 1 || sink.saved[0] != report {
		t.Errorf("sink should receive the produced report, got %d saves", len(sink.saved))
	}
}

func TestEvaluateSinkFailureDoesNotFailEvaluation(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{diabetesTrialJSON}}
	o := newTestOrchestrator(llmClient, diabeticPatient())
	o.SetReportSink(&recordingSink{err: errors.New("sink down")})

	if _, err := o.Evaluate(context.Background(), "trial-dm2", "criteria", "pat-1"); err != nil {
		t.Fatalf("sink failure must not fail the evaluation: %v", err)
	}
}

func TestEvaluateCompileFailurePropagates(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{"no json here", "still no json"}}
	o := newTestOrchestrator(llmClient, diabeticPatient())

	if _, err := o.Evaluate(context.Background(), "trial-dm2", "criteria", "pat-1"); err == nil {
		t.Fatal("expected compile failure to propagate")
	}
}
