// Package terms maps everyday health vocabulary onto resource types and lab
// code buckets.
package terms

import "github.com/user/healthchat/internal/types"

// Entry binds a resource type to the keywords that select it.
type Entry struct {
	Type     types.ResourceType `yaml:"type"`
	Keywords []string           `yaml:"keywords"`
}

// CodeBucket is a named family of lab or vital-sign codes.
type CodeBucket struct {
	Name  string   `yaml:"name"`
	Codes []string `yaml:"codes"`
	Terms []string `yaml:"terms"`
}

// CodeSearch converts the bucket to a plan filter.
func (b *CodeBucket) CodeSearch() *types.CodeSearch {
	return &types.CodeSearch{
		Bucket: b.Name,
		Codes:  append([]string(nil), b.Codes...),
		Terms:  append([]string(nil), b.Terms...),
	}
}

// The order of defaultGlossary is the match priority. "test results" hits
// DiagnosticReport because it is checked before Observation.
var defaultGlossary = []Entry{
	{types.Encounter, []string{"visit", "encounter", "appointment", "admission", "hospital stay", "check-up", "checkup"}},
	{types.DiagnosticReport, []string{"test result", "diagnostic", "report", "imaging", "x-ray", "xray", "scan", "pathology"}},
	{types.MedicationRequest, []string{"medication", "medicine", "meds", "prescription", "prescribed", "drug", "pill"}},
	{types.Immunization, []string{"immunization", "immunisation", "vaccin", "shot", "booster"}},
	{types.Observation, []string{"observation", "vital", "lab", "measurement", "reading", "blood pressure", "heart rate", "pulse", "weight", "height", "bmi", "temperature", "cholesterol", "glucose", "blood sugar", "a1c"}},
	{types.Condition, []string{"condition", "diagnosis", "diagnoses", "problem", "illness", "health issue"}},
	{types.FamilyMemberHistory, []string{"family history", "family member", "hereditary", "runs in my family"}},
	{types.AllergyIntolerance, []string{"allerg", "intolerance", "allergic"}},
	{types.Procedure, []string{"procedure", "surgery", "surgeries", "operation"}},
	{types.DocumentReference, []string{"document", "clinical note", "notes", "discharge summary", "letter"}},
}

// LOINC codes for the common lab and vital vocabulary.
var defaultBuckets = []CodeBucket{
	{Name: "cholesterol", Codes: []string{"2093-3", "2085-9", "2089-1", "13457-7", "2571-8"}, Terms: []string{"cholesterol", "hdl", "ldl", "triglyceride", "lipid"}},
	{Name: "glucose", Codes: []string{"2345-7", "2339-0", "4548-4", "17856-6"}, Terms: []string{"glucose", "blood sugar", "a1c", "hba1c"}},
	{Name: "blood pressure", Codes: []string{"85354-9", "8480-6", "8462-4"}, Terms: []string{"blood pressure", "systolic", "diastolic"}},
	{Name: "heart rate", Codes: []string{"8867-4"}, Terms: []string{"heart rate", "pulse"}},
	{Name: "weight", Codes: []string{"29463-7", "3141-9"}, Terms: []string{"weight"}},
	{Name: "bmi", Codes: []string{"39156-5"}, Terms: []string{"bmi", "body mass"}},
	{Name: "height", Codes: []string{"8302-2"}, Terms: []string{"height"}},
	{Name: "temperature", Codes: []string{"8310-5"}, Terms: []string{"temperature", "fever"}},
	{Name: "hemoglobin", Codes: []string{"718-7"}, Terms: []string{"hemoglobin", "haemoglobin"}},
	{Name: "kidney", Codes: []string{"2160-0", "33914-3", "48642-3"}, Terms: []string{"creatinine", "egfr", "kidney"}},
	{Name: "thyroid", Codes: []string{"3016-3", "3024-7"}, Terms: []string{"tsh", "thyroid"}},
	{Name: "vitamin d", Codes: []string{"1989-3"}, Terms: []string{"vitamin d"}},
}
