// Package coding is the Coding-System Registry: a static,
// in-memory mapping from surface-form keywords to canonical coding system
// triples. It is pure data plus lookup: no I/O, no mutable state, safe for
// concurrent reads without locking.
package coding

import "strings"

// System URIs for the six vocabularies the registry seeds.
const (
	SystemLOINC     = "http://loinc.org"
	SystemICD10CM   = "http://hl7.org/fhir/sid/icd-10-cm"
	SystemSNOMED    = "http://snomed.info/sct"
	SystemRxNorm    = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemCPT       = "http://www.ama-assn.org/go/cpt"
	SystemCVX       = "http://hl7.org/fhir/sid/cvx"
)

// Coding is a canonical {system, code, display} triple.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// entry is one row of the keyword table: an alias mapped to a coding, scoped
// to the categories it applies under.
type entry struct {
	keyword    string
	categories []string
	coding     Coding
}

// Categories mirror the leaf categories the registry can enrich.
// "observation" also covers "performance_status"; the two share one coded
// vocabulary.
const (
	catDemographics     = "demographics"
	catCondition        = "condition"
	catObservation      = "observation"
	catPerformanceStat  = "performance_status"
	catMedication       = "medication"
	catMedicationReq    = "medication_request"
	catAllergy          = "allergy"
	catProcedure        = "procedure"
	catDiagnosticReport = "diagnostic_report"
	catImmunization     = "immunization"
)

// table is the curated keyword → coding seed list. Keywords are lower-cased,
// whitespace-normalized surface forms; lookup matches the longest keyword
// first, then falls back to table order for ties.
var table = []entry{
	// LOINC: labs and diagnostics.
	{"hba1c", []string{catObservation}, Coding{SystemLOINC, "4548-4", "Hemoglobin A1c"}},
	{"hemoglobin a1c", []string{catObservation}, Coding{SystemLOINC, "4548-4", "Hemoglobin A1c"}},
	{"egfr", []string{catObservation}, Coding{SystemLOINC, "33914-3", "Estimated glomerular filtration rate"}},
	{"glomerular filtration rate", []string{catObservation}, Coding{SystemLOINC, "33914-3", "Estimated glomerular filtration rate"}},
	{"ct chest", []string{catDiagnosticReport, catProcedure}, Coding{SystemLOINC, "24627-2", "CT Chest"}},
	{"pet scan", []string{catDiagnosticReport, catProcedure}, Coding{SystemLOINC, "44139-4", "PET whole body"}},
	{"ecog", []string{catObservation, catPerformanceStat}, Coding{SystemLOINC, "89247-1", "ECOG Performance Status"}},
	{"ecog performance status", []string{catObservation, catPerformanceStat}, Coding{SystemLOINC, "89247-1", "ECOG Performance Status"}},
	{"karnofsky", []string{catObservation, catPerformanceStat}, Coding{SystemLOINC, "89243-0", "Karnofsky Performance Status"}},
	{"karnofsky performance status", []string{catObservation, catPerformanceStat}, Coding{SystemLOINC, "89243-0", "Karnofsky Performance Status"}},
	{"creatinine", []string{catObservation}, Coding{SystemLOINC, "2160-0", "Creatinine [Mass/volume] in Serum or Plasma"}},
	{"bilirubin", []string{catObservation}, Coding{SystemLOINC, "1975-2", "Bilirubin total [Mass/volume] in Serum or Plasma"}},
	{"ldl", []string{catObservation}, Coding{SystemLOINC, "18262-6", "Cholesterol in LDL [Mass/volume] in Serum or Plasma"}},
	{"absolute neutrophil count", []string{catObservation}, Coding{SystemLOINC, "751-8", "Neutrophils [#/volume] in Blood"}},
	{"platelet count", []string{catObservation}, Coding{SystemLOINC, "777-3", "Platelets [#/volume] in Blood"}},

	// ICD-10-CM: diagnoses.
	{"type 2 diabetes", []string{catCondition}, Coding{SystemICD10CM, "E11", "Type 2 diabetes mellitus"}},
	{"type ii diabetes", []string{catCondition}, Coding{SystemICD10CM, "E11", "Type 2 diabetes mellitus"}},
	{"hypertension", []string{catCondition}, Coding{SystemICD10CM, "I10", "Essential (primary) hypertension"}},
	{"chronic kidney disease", []string{catCondition}, Coding{SystemICD10CM, "N18", "Chronic kidney disease"}},
	{"copd", []string{catCondition}, Coding{SystemICD10CM, "J44", "Other chronic obstructive pulmonary disease"}},
	{"atrial fibrillation", []string{catCondition}, Coding{SystemICD10CM, "I48", "Atrial fibrillation and flutter"}},

	// SNOMED CT: findings, allergens, procedures.
	{"pre-diabetes", []string{catCondition}, Coding{SystemSNOMED, "714628002", "Prediabetes"}},
	{"prediabetes", []string{catCondition}, Coding{SystemSNOMED, "714628002", "Prediabetes"}},
	{"pregnant", []string{catCondition}, Coding{SystemSNOMED, "77386006", "Pregnant"}},
	{"pregnancy", []string{catCondition}, Coding{SystemSNOMED, "77386006", "Pregnant"}},
	{"breastfeeding", []string{catCondition}, Coding{SystemSNOMED, "169826009", "Lactation"}},
	{"penicillin", []string{catAllergy}, Coding{SystemSNOMED, "764146007", "Penicillin"}},
	{"peanut", []string{catAllergy}, Coding{SystemSNOMED, "91935009", "Allergy to peanuts"}},
	{"cabg", []string{catProcedure}, Coding{SystemSNOMED, "232717009", "Coronary artery bypass graft"}},
	{"coronary artery bypass", []string{catProcedure}, Coding{SystemSNOMED, "232717009", "Coronary artery bypass graft"}},

	// RxNorm: medications.
	{"metformin", []string{catMedication, catMedicationReq}, Coding{SystemRxNorm, "6809", "Metformin"}},
	{"warfarin", []string{catMedication, catMedicationReq}, Coding{SystemRxNorm, "11289", "Warfarin"}},
	{"insulin", []string{catMedication, catMedicationReq}, Coding{SystemRxNorm, "5856", "Insulin"}},
	{"atorvastatin", []string{catMedication, catMedicationReq}, Coding{SystemRxNorm, "83367", "Atorvastatin"}},
	{"lisinopril", []string{catMedication, catMedicationReq}, Coding{SystemRxNorm, "29046", "Lisinopril"}},

	// CPT: procedures.
	{"cabg procedure", []string{catProcedure}, Coding{SystemCPT, "33533", "Coronary artery bypass, single arterial graft"}},
	{"colonoscopy", []string{catProcedure}, Coding{SystemCPT, "45378", "Colonoscopy, flexible"}},

	// CVX: vaccines.
	{"influenza vaccine", []string{catImmunization}, Coding{SystemCVX, "88", "Influenza, unspecified formulation"}},
	{"flu vaccine", []string{catImmunization}, Coding{SystemCVX, "88", "Influenza, unspecified formulation"}},
	{"covid-19 vaccine", []string{catImmunization}, Coding{SystemCVX, "208", "COVID-19, mRNA, LNP-S, PF, 30 mcg/0.3 mL"}},
	{"covid vaccine", []string{catImmunization}, Coding{SystemCVX, "208", "COVID-19, mRNA, LNP-S, PF, 30 mcg/0.3 mL"}},
}

// Registry exposes Lookup over the static table. It holds no state of its
// own beyond the package-level table, so the zero value is ready to use.
type Registry struct{}

// New returns a Registry. There is nothing to configure; New exists so
// callers depend on an interface-shaped value rather than package functions.
func New() *Registry {
	return &Registry{}
}

// Lookup returns the best coding match for free text under category, or
// (Coding{}, false) on a miss. Matching is substring-based, case-insensitive,
// whitespace-normalized; ties resolve by longest keyword, then table order.
func (r *Registry) Lookup(category, text string) (Coding, bool) {
	needle := normalize(text)
	if needle == "" {
		return Coding{}, false
	}

	var best entry
	found := false
	for _, e := range table {
		if !appliesTo(e, category) {
			continue
		}
		if !strings.Contains(needle, e.keyword) {
			continue
		}
		if !found || len(e.keyword) > len(best.keyword) {
			best = e
			found = true
		}
	}
	if !found {
		return Coding{}, false
	}
	return best.coding, true
}

func appliesTo(e entry, category string) bool {
	category = normalize(category)
	for _, c := range e.categories {
		if c == category {
			return true
		}
	}
	// performance_status and observation share one coded vocabulary.
	if category == catPerformanceStat {
		for _, c := range e.categories {
			if c == catObservation {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
