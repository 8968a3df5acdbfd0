// Package fhirgw is the FHIR Gateway: a thin, typed HTTP client over a
// FHIR R4 server that the Leaf Evaluators use to pull Patient-scoped
// resources.
package fhirgw

import "encoding/json"

// FHIRResourceKind names a FHIR resource type for search-parameter lookup.
type FHIRResourceKind string

const (
	KindPatient             FHIRResourceKind = "Patient"
	KindCondition           FHIRResourceKind = "Condition"
	KindObservation         FHIRResourceKind = "Observation"
	KindMedicationStatement FHIRResourceKind = "MedicationStatement"
	KindMedicationRequest   FHIRResourceKind = "MedicationRequest"
	KindAllergyIntolerance  FHIRResourceKind = "AllergyIntolerance"
	KindProcedure           FHIRResourceKind = "Procedure"
	KindDiagnosticReport    FHIRResourceKind = "DiagnosticReport"
	KindImmunization        FHIRResourceKind = "Immunization"
)

// Resource is the common envelope every FHIR R4 resource shares.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
}

// Coding is a single {system, code, display} triple.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept groups one or more Codings with an optional free-text label.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Reference points at another resource, e.g. "Patient/123".
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Quantity is a measured value with a unit.
type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

// Patient is the subset of Patient fields the Demographics evaluator needs.
type Patient struct {
	Resource
	BirthDate string `json:"birthDate,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// Condition is the subset of Condition fields the Condition evaluator needs.
type Condition struct {
	Resource
	Subject          Reference        `json:"subject"`
	Code             *CodeableConcept `json:"code,omitempty"`
	ClinicalStatus   *CodeableConcept `json:"clinicalStatus,omitempty"`
	OnsetDateTime    string           `json:"onsetDateTime,omitempty"`
	RecordedDate     string           `json:"recordedDate,omitempty"`
}

// Observation is the subset of Observation fields the Observation and
// performance_status evaluators need.
type Observation struct {
	Resource
	Subject         Reference        `json:"subject"`
	Status          string           `json:"status,omitempty"`
	Code            *CodeableConcept `json:"code,omitempty"`
	ValueQuantity   *Quantity        `json:"valueQuantity,omitempty"`
	ValueString     string           `json:"valueString,omitempty"`
	ValueCodeable   *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	EffectiveDate   string           `json:"effectiveDateTime,omitempty"`
}

// MedicationStatement is used for "is currently/historically on drug X".
type MedicationStatement struct {
	Resource
	Subject          Reference        `json:"subject"`
	Status           string           `json:"status,omitempty"`
	MedicationCode   *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	EffectiveDate    string           `json:"effectiveDateTime,omitempty"`
}

// MedicationRequest is used for "has an active order for drug X".
type MedicationRequest struct {
	Resource
	Subject          Reference        `json:"subject"`
	Status           string           `json:"status,omitempty"`
	Intent           string           `json:"intent,omitempty"`
	MedicationCode   *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	AuthoredOn       string           `json:"authoredOn,omitempty"`
}

// AllergyIntolerance is used for allergy exclusion criteria.
type AllergyIntolerance struct {
	Resource
	Patient          Reference        `json:"patient"`
	ClinicalStatus   *CodeableConcept `json:"clinicalStatus,omitempty"`
	Code             *CodeableConcept `json:"code,omitempty"`
	RecordedDate     string           `json:"recordedDate,omitempty"`
}

// Procedure is used for "prior procedure X" criteria.
type Procedure struct {
	Resource
	Subject          Reference        `json:"subject"`
	Status           string           `json:"status,omitempty"`
	Code             *CodeableConcept `json:"code,omitempty"`
	PerformedDateTime string          `json:"performedDateTime,omitempty"`
}

// DiagnosticReport is used for lab-panel/imaging-result criteria.
type DiagnosticReport struct {
	Resource
	Subject          Reference        `json:"subject"`
	Status           string           `json:"status,omitempty"`
	Code             *CodeableConcept `json:"code,omitempty"`
	Conclusion       string           `json:"conclusion,omitempty"`
	EffectiveDate    string           `json:"effectiveDateTime,omitempty"`
}

// Immunization is used for vaccination-status criteria.
type Immunization struct {
	Resource
	Patient          Reference        `json:"patient"`
	Status           string           `json:"status,omitempty"`
	VaccineCode      *CodeableConcept `json:"vaccineCode,omitempty"`
	OccurrenceDate   string           `json:"occurrenceDateTime,omitempty"`
}

// Bundle is the search-result envelope, including next-page links.
type Bundle struct {
	ResourceType string         `json:"resourceType"`
	Total        int            `json:"total,omitempty"`
	Link         []BundleLink   `json:"link,omitempty"`
	Entry        []BundleEntry  `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
}

// NextLink returns the "next" relation URL from a Bundle, or "" if absent.
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}
