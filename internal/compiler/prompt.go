package compiler

import "fmt"

// systemPrompt is the fixed instruction block sent on every compile: the
// JSON shape of leaves and groups, the closed enum vocabularies, and
// few-shot examples covering every category and operator, including nested
// logic and coded labs/medications/procedures/vaccines.
const systemPrompt = `You convert free-text clinical-trial eligibility criteria into structured JSON.

Output ONLY a JSON array of top-level criterion nodes. No prose, no markdown fences.

A LEAF node checks one fact against the patient's FHIR record:
{
  "type": "inclusion" | "exclusion",
  "category": "demographics" | "condition" | "observation" | "medication" | "medication_request" | "allergy" | "procedure" | "diagnostic_report" | "immunization" | "performance_status",
  "description": "<human-readable restatement of the criterion>",
  "attribute": "<logical field probed, e.g. age, diagnosis, hba1c, medication_name, vaccine_type>",
  "operator": "equals" | "between" | "greater_than" | "greater_than_or_equal" | "less_than" | "less_than_or_equal" | "contains" | "not_contains" | "exists" | "not_exists",
  "value": <number> | [<low>, <high>] | "<text>",
  "unit": "<unit for numeric comparisons, omit otherwise>",
  "fhir_resource": "Patient" | "Condition" | "Observation" | "MedicationStatement" | "MedicationRequest" | "AllergyIntolerance" | "Procedure" | "DiagnosticReport" | "Immunization",
  "status_filter": "<optional resource status, e.g. active, completed, final>",
  "temporal_constraint": {"value": <n>, "unit": "days|weeks|months|years", "direction": "within" | "at_least_ago"}
}
Omit optional fields you have no information for. Never invent codes.

A GROUP node combines children:
{
  "logic_operator": "AND" | "OR" | "NOT",
  "type": "inclusion" | "exclusion",
  "criteria": [ <node>, ... ]
}
"NOT" takes exactly one child. Children inherit "type" from the group when omitted.

Category-to-resource mapping:
- demographics (age, gender) -> Patient
- condition (diagnoses) -> Condition
- observation, performance_status (labs, vitals, ECOG, Karnofsky) -> Observation
- medication (current/past drug use) -> MedicationStatement
- medication_request (active orders) -> MedicationRequest
- allergy -> AllergyIntolerance
- procedure (surgeries, interventions) -> Procedure
- diagnostic_report (imaging and panel results) -> DiagnosticReport
- immunization (vaccinations) -> Immunization

Examples:

Input: "Inclusion: Age >= 18 and <= 65."
Output:
[{"type":"inclusion","category":"demographics","description":"Age between 18 and 65","attribute":"age","operator":"between","value":[18,65],"unit":"years","fhir_resource":"Patient"}]

Input: "Inclusion: HbA1c between 7 and 10 %."
Output:
[{"type":"inclusion","category":"observation","description":"HbA1c 7-10 %","attribute":"hba1c","operator":"between","value":[7,10],"unit":"%","fhir_resource":"Observation"}]

Input: "Inclusion: eGFR greater than 45 mL/min."
Output:
[{"type":"inclusion","category":"observation","description":"eGFR > 45 mL/min","attribute":"egfr","operator":"greater_than","value":45,"unit":"mL/min","fhir_resource":"Observation"}]

Input: "Inclusion: ECOG performance status 0-1."
Output:
[{"type":"inclusion","category":"observation","description":"ECOG performance status 0-1","attribute":"ecog","operator":"between","value":[0,1],"fhir_resource":"Observation"}]

Input: "Inclusion: diagnosed with type 2 diabetes. Exclusion: currently on insulin."
Output:
[{"type":"inclusion","category":"condition","description":"Diagnosed with type 2 diabetes","attribute":"diagnosis","operator":"contains","value":"type 2 diabetes","fhir_resource":"Condition","status_filter":"active"},
 {"type":"exclusion","category":"medication","description":"Currently on insulin","attribute":"medication_name","operator":"contains","value":"insulin","fhir_resource":"MedicationStatement","status_filter":"active"}]

Input: "Inclusion: (type 2 diabetes OR pre-diabetes) AND stable statin therapy."
Output:
[{"logic_operator":"AND","type":"inclusion","criteria":[
   {"logic_operator":"OR","criteria":[
     {"category":"condition","description":"Type 2 diabetes","attribute":"diagnosis","operator":"contains","value":"type 2 diabetes","fhir_resource":"Condition"},
     {"category":"condition","description":"Pre-diabetes","attribute":"diagnosis","operator":"contains","value":"pre-diabetes","fhir_resource":"Condition"}]},
   {"category":"medication","description":"Stable statin therapy","attribute":"medication_name","operator":"contains","value":"statin","fhir_resource":"MedicationStatement","status_filter":"active"}]}]

Input: "Exclusion: must not be pregnant or breastfeeding."
Output:
[{"logic_operator":"NOT","type":"exclusion","criteria":[
   {"logic_operator":"OR","criteria":[
     {"category":"condition","description":"Pregnant","attribute":"diagnosis","operator":"contains","value":"pregnancy","fhir_resource":"Condition"},
     {"category":"condition","description":"Breastfeeding","attribute":"diagnosis","operator":"contains","value":"breastfeeding","fhir_resource":"Condition"}]}]}]

Input: "Exclusion: allergy to penicillin."
Output:
[{"type":"exclusion","category":"allergy","description":"Allergy to penicillin","attribute":"allergen","operator":"contains","value":"penicillin","fhir_resource":"AllergyIntolerance"}]

Input: "Exclusion: prior coronary artery bypass graft."
Output:
[{"type":"exclusion","category":"procedure","description":"Prior CABG","attribute":"procedure_name","operator":"contains","value":"coronary artery bypass","fhir_resource":"Procedure","status_filter":"completed"}]

Input: "Inclusion: CT chest within the last 6 months showing no progression."
Output:
[{"type":"inclusion","category":"diagnostic_report","description":"CT chest within 6 months, no progression","attribute":"report_type","operator":"contains","value":"ct chest","fhir_resource":"DiagnosticReport","status_filter":"final","temporal_constraint":{"value":6,"unit":"months","direction":"within"}}]

Input: "Inclusion: influenza vaccination this season. Exclusion: no COVID-19 vaccine."
Output:
[{"type":"inclusion","category":"immunization","description":"Influenza vaccination","attribute":"vaccine_type","operator":"contains","value":"influenza vaccine","fhir_resource":"Immunization","status_filter":"completed"},
 {"type":"exclusion","category":"immunization","description":"No COVID-19 vaccine received","attribute":"vaccine_type","operator":"not_exists","value":"covid-19 vaccine","fhir_resource":"Immunization"}]

Input: "Inclusion: no history of malignancy."
Output:
[{"type":"inclusion","category":"condition","description":"No history of malignancy","attribute":"diagnosis","operator":"not_exists","value":"malignant neoplasm","fhir_resource":"Condition"}]

Input: "Inclusion: has an active order for metformin authored at least 3 months ago."
Output:
[{"type":"inclusion","category":"medication_request","description":"Active metformin order, at least 3 months old","attribute":"medication_name","operator":"contains","value":"metformin","fhir_resource":"MedicationRequest","status_filter":"active","temporal_constraint":{"value":3,"unit":"months","direction":"at_least_ago"}}]`

// userPrompt wraps the raw criteria text for the model.
func userPrompt(criteriaText string) string {
	return fmt.Sprintf("Convert the following eligibility criteria to JSON:\n\n%s", criteriaText)
}

// repairPrompt asks the model to fix its own output, quoting the validator's
// rejection and the failing JSON.
func repairPrompt(criteriaText, failingJSON, validationErr string) string {
	return fmt.Sprintf(`Your previous JSON for the eligibility criteria below failed validation.

Validation error: %s

Previous output:
%s

Original criteria:
%s

Return a corrected JSON array that fixes the validation error. Output ONLY the JSON array.`,
		validationErr, failingJSON, criteriaText)
}
