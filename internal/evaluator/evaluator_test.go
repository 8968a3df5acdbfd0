package evaluator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/internal/engineerr"
	"github.com/ehr/eligibility/internal/fhirgw"
	"github.com/ehr/eligibility/internal/fhirgw/fhirgwtest"
)

func rawNum(f float64) json.RawMessage {
	b, _ := json.Marshal(f)
	return b
}

func rawRange(low, high float64) json.RawMessage {
	b, _ := json.Marshal([2]float64{low, high})
	return b
}

func rawStr(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func fixedClock(s string) func() time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestEvaluatorAgeRange(t *testing.T) {
	fake := &fhirgwtest.Fake{Patient: &fhirgw.Patient{BirthDate: "1979-05-15"}}
	ev := New(fake, 0, 1, zerolog.Nop())
	ev.Now = fixedClock("2025-10-15")

	leaf := &criterion.Node{
		Type: criterion.TypeInclusion, Category: criterion.CategoryDemographics,
		Attribute: "age", Operator: criterion.OpBetween, Value: rawRange(18, 65),
		FHIRResource: criterion.ResourcePatient,
	}
	results, err := ev.EvaluateAll(context.Background(), []*criterion.Node{leaf}, "patient-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results[0].Met {
		t.Fatalf("expected age criterion met, got reason %q", results[0].Reason)
	}
	if results[0].Reason != "age 46 in [18,65]" {
		t.Errorf("unexpected reason: %q", results[0].Reason)
	}
	eligible, confidence, summary := Verdict(results)
	if !eligible || confidence != 100 {
		t.Errorf("expected eligible=true confidence=100, got %v %d", eligible, confidence)
	}
	if summary.InclusionMet != 1 || summary.InclusionTotal != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestEvaluatorCodedLab(t *testing.T) {
	fake := &fhirgwtest.Fake{
		Observations: []fhirgw.Observation{
			{
				Resource: fhirgw.Resource{ID: "obs-1"},
				Code:     &fhirgw.CodeableConcept{Coding: []fhirgw.Coding{{System: "http://loinc.org", Code: "4548-4"}}},
				ValueQuantity: &fhirgw.Quantity{Value: 8.2, Unit: "%"},
			},
		},
	}
	ev := New(fake, 0, 1, zerolog.Nop())

	leaf := &criterion.Node{
		Type: criterion.TypeInclusion, Category: criterion.CategoryObservation,
		Attribute: "hba1c", Operator: criterion.OpBetween, Value: rawRange(7, 10), Unit: "%",
		FHIRResource: criterion.ResourceObservation,
		Coding:       &criterion.Coding{System: "http://loinc.org", Code: "4548-4", Display: "HbA1c"},
	}
	results, err := ev.EvaluateAll(context.Background(), []*criterion.Node{leaf}, "patient-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results[0].Met {
		t.Fatalf("expected lab criterion met, got reason %q", results[0].Reason)
	}
	if results[0].Evidence["observation_id"] != "obs-1" {
		t.Errorf("expected evidence to cite obs-1, got %+v", results[0].Evidence)
	}
}

func TestEvaluatorNestedAndOrWithExclusion(t *testing.T) {
	fake := &fhirgwtest.Fake{
		Conditions: []fhirgw.Condition{
			{
				Resource:       fhirgw.Resource{ID: "cond-1"},
				ClinicalStatus: &fhirgw.CodeableConcept{Text: "active"},
				Code:           &fhirgw.CodeableConcept{Coding: []fhirgw.Coding{{System: "http://hl7.org/fhir/sid/icd-10-cm", Code: "E11"}}},
			},
		},
		Observations: []fhirgw.Observation{
			{
				Resource:      fhirgw.Resource{ID: "obs-ecog"},
				Code:          &fhirgw.CodeableConcept{Coding: []fhirgw.Coding{{System: "http://loinc.org", Code: "89247-1"}}},
				ValueQuantity: &fhirgw.Quantity{Value: 1},
			},
		},
		MedicationStatements: nil,
	}
	ev := New(fake, 0, 1, zerolog.Nop())

	t2d := &criterion.Node{Category: criterion.CategoryCondition, Operator: criterion.OpExists,
		FHIRResource: criterion.ResourceCondition, Attribute: "diagnosis",
		Coding: &criterion.Coding{System: "http://hl7.org/fhir/sid/icd-10-cm", Code: "E11"}}
	preDiabetes := &criterion.Node{Category: criterion.CategoryCondition, Operator: criterion.OpExists,
		FHIRResource: criterion.ResourceCondition, Attribute: "diagnosis",
		Coding: &criterion.Coding{System: "http://snomed.info/sct", Code: "714628002"}}
	orGroup := &criterion.Node{LogicOperator: criterion.LogicOr, Criteria: []*criterion.Node{t2d, preDiabetes}}
	ecog := &criterion.Node{Category: criterion.CategoryObservation, Operator: criterion.OpBetween,
		FHIRResource: criterion.ResourceObservation, Attribute: "ecog", Value: rawRange(0, 1),
		Coding: &criterion.Coding{System: "http://loinc.org", Code: "89247-1"}}
	inclusion := &criterion.Node{Type: criterion.TypeInclusion, LogicOperator: criterion.LogicAnd,
		Criteria: []*criterion.Node{orGroup, ecog}}

	exclusion := &criterion.Node{Type: criterion.TypeExclusion, Category: criterion.CategoryMedication,
		Operator: criterion.OpContains, Value: rawStr("insulin"), FHIRResource: criterion.ResourceMedicationStatement,
		Attribute: "medication"}

	results, err := ev.EvaluateAll(context.Background(), []*criterion.Node{inclusion, exclusion}, "patient-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eligible, _, _ := Verdict(results)
	if !eligible {
		t.Fatalf("expected eligible, got results: %+v", results)
	}
	if !results[0].Met {
		t.Errorf("expected inclusion group met")
	}
	if results[1].Met {
		t.Errorf("expected exclusion not violated")
	}
}

func TestEvaluatorMedicationClassFuzzyMatch(t *testing.T) {
	fake := &fhirgwtest.Fake{
		MedicationStatements: []fhirgw.MedicationStatement{
			{Resource: fhirgw.Resource{ID: "med-1"}, Status: "active",
				MedicationCode: &fhirgw.CodeableConcept{Text: "Atorvastatin 40 mg"}},
		},
	}
	ev := New(fake, 0, 1, zerolog.Nop())
	leaf := &criterion.Node{Type: criterion.TypeInclusion, Category: criterion.CategoryMedication,
		Operator: criterion.OpContains, Value: rawStr("statin"), FHIRResource: criterion.ResourceMedicationStatement,
		Attribute: "medication_class"}

	results, err := ev.EvaluateAll(context.Background(), []*criterion.Node{leaf}, "patient-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results[0].Met {
		t.Fatalf("expected statin match via bidirectional substring, reason=%q", results[0].Reason)
	}
	if got := results[0].Reason; got == "" {
		t.Error("expected non-empty reason")
	}
}

func TestEvaluatorNoMatchingAllergy(t *testing.T) {
	fake := &fhirgwtest.Fake{} // zero allergy records
	ev := New(fake, 0, 1, zerolog.Nop())

	leaf := &criterion.Node{Type: criterion.TypeExclusion, Category: criterion.CategoryAllergy,
		Operator: criterion.OpContains, Value: rawStr("penicillin"), FHIRResource: criterion.ResourceAllergyIntolerance,
		Attribute: "allergen"}

	results, err := ev.EvaluateAll(context.Background(), []*criterion.Node{leaf}, "patient-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Met {
		t.Fatalf("expected exclusion leaf unmet with zero allergy records")
	}
	eligible, _, summary := Verdict(results)
	if !eligible {
		t.Errorf("expected eligible unaffected by unmet exclusion")
	}
	if summary.ExclusionViolated != 0 {
		t.Errorf("expected zero exclusions violated, got %d", summary.ExclusionViolated)
	}
}

// NOT with a single child; the validator must reject two children before
// the evaluator ever sees the tree (compile-time concern), but the evaluator
// itself must also behave sanely if handed a single-child NOT.
func TestEvaluatorNotWithSingleChild(t *testing.T) {
	fake := &fhirgwtest.Fake{
		Conditions: []fhirgw.Condition{
			{Resource: fhirgw.Resource{ID: "preg-1"}, Code: &fhirgw.CodeableConcept{Text: "Pregnant"}},
		},
	}
	ev := New(fake, 0, 1, zerolog.Nop())

	pregnant := &criterion.Node{Category: criterion.CategoryCondition, Operator: criterion.OpContains,
		Value: rawStr("pregnant"), FHIRResource: criterion.ResourceCondition, Attribute: "diagnosis"}
	breastfeeding := &criterion.Node{Category: criterion.CategoryCondition, Operator: criterion.OpContains,
		Value: rawStr("breastfeeding"), FHIRResource: criterion.ResourceCondition, Attribute: "diagnosis"}
	or := &criterion.Node{LogicOperator: criterion.LogicOr, Criteria: []*criterion.Node{pregnant, breastfeeding}}
	not := &criterion.Node{Type: criterion.TypeExclusion, LogicOperator: criterion.LogicNot, Criteria: []*criterion.Node{or}}

	results, err := ev.EvaluateAll(context.Background(), []*criterion.Node{not}, "patient-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// OR matched pregnant -> true, NOT inverts -> false: the criterion is
	// unmet because the patient IS pregnant.
	if results[0].Met {
		t.Fatalf("expected NOT(pregnant OR breastfeeding) to be unmet since patient is pregnant")
	}
}

func TestEvaluatorDepthExceeded(t *testing.T) {
	var deepest *criterion.Node = &criterion.Node{Category: criterion.CategoryCondition, Operator: criterion.OpExists,
		FHIRResource: criterion.ResourceCondition, Attribute: "diagnosis", Value: rawStr("x")}
	node := deepest
	for i := 0; i < 12; i++ {
		node = &criterion.Node{LogicOperator: criterion.LogicAnd, Criteria: []*criterion.Node{node}}
	}
	node.Type = criterion.TypeInclusion

	ev := New(&fhirgwtest.Fake{}, 10, 1, zerolog.Nop())
	_, err := ev.EvaluateAll(context.Background(), []*criterion.Node{node}, "patient-1")
	if err == nil {
		t.Fatal("expected depth_exceeded error")
	}
	var ee *engineerr.EngineError
	if !asEngineError(err, &ee) || ee.Kind != engineerr.KindDepthExceeded {
		t.Fatalf("expected KindDepthExceeded, got %v", err)
	}
}

func asEngineError(err error, target **engineerr.EngineError) bool {
	if ee, ok := err.(*engineerr.EngineError); ok {
		*target = ee
		return true
	}
	return false
}

// Leaf error isolation: a FHIR gateway error on one leaf must not
// prevent its sibling from being evaluated.
func TestEvaluatorLeafErrorIsolation(t *testing.T) {
	failing := &fhirgwtest.Fake{Err: fakeNetErr{}}
	ev := New(failing, 0, 1, zerolog.Nop())

	a := &criterion.Node{Type: criterion.TypeInclusion, Category: criterion.CategoryCondition,
		Operator: criterion.OpExists, Value: rawStr("x"), FHIRResource: criterion.ResourceCondition, Attribute: "diagnosis"}
	b := &criterion.Node{Type: criterion.TypeInclusion, Category: criterion.CategoryDemographics,
		Operator: criterion.OpGreaterThan, Value: rawNum(0), FHIRResource: criterion.ResourcePatient, Attribute: "age"}

	group := &criterion.Node{Type: criterion.TypeInclusion, LogicOperator: criterion.LogicAnd, Criteria: []*criterion.Node{a, b}}
	results, err := ev.EvaluateAll(context.Background(), []*criterion.Node{group}, "patient-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results[0].SubResults) != 2 {
		t.Fatalf("expected both siblings evaluated despite one failing, got %d", len(results[0].SubResults))
	}
	for _, sr := range results[0].SubResults {
		if sr.Met {
			t.Errorf("expected failing gateway calls to produce unmet results, got met=true reason=%q", sr.Reason)
		}
	}
}

type fakeNetErr struct{}

func (fakeNetErr) Error() string { return "simulated network failure" }
