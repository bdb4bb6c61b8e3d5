package keyterms

import (
	"sort"
	"strings"
)

// DefaultSpecialty is used when an encounter names no specialty or an
// unknown one.
const DefaultSpecialty = "General Practice"

// catalog maps medical specialties to the domain vocabulary hinted to the
// streaming transcription service.
var catalog = map[string][]string{
	"General Practice": {
		"hypertension", "diabetes mellitus", "hyperlipidemia",
		"metformin", "lisinopril", "atorvastatin", "amlodipine",
		"hemoglobin A1c", "blood pressure", "BMI",
		"chief complaint", "review of systems", "auscultation",
		"palpation", "percussion", "vital signs", "ibuprofen",
		"acetaminophen", "amoxicillin", "prednisone",
	},
	"Cardiology": {
		"ejection fraction", "coronary artery disease", "ST elevation",
		"troponin", "echocardiogram", "electrocardiogram", "ECG",
		"atrial fibrillation", "heart failure", "stent",
		"angioplasty", "beta blocker", "metoprolol", "warfarin",
		"anticoagulation", "chest pain", "dyspnea", "palpitations",
		"myocardial infarction", "cardiac catheterization",
	},
	"Endocrinology": {
		"hemoglobin A1c", "insulin resistance", "thyroid",
		"levothyroxine", "TSH", "T3", "T4", "glucose tolerance",
		"diabetic neuropathy", "retinopathy", "metformin",
		"insulin glargine", "GLP-1 agonist", "semaglutide",
		"Hashimoto's thyroiditis", "Graves' disease", "adrenal insufficiency",
	},
	"Orthopedics": {
		"anterior cruciate ligament", "ACL", "meniscus",
		"arthroscopy", "MRI", "cortisone injection",
		"ibuprofen", "range of motion", "physical therapy",
		"fracture", "dislocation", "sprain", "rotator cuff",
		"carpal tunnel", "osteoarthritis", "bone density",
	},
	"Psychiatry": {
		"sertraline", "fluoxetine", "cognitive behavioral therapy",
		"major depressive disorder", "generalized anxiety",
		"SSRI", "SNRI", "benzodiazepine", "PHQ-9", "GAD-7",
		"bipolar disorder", "schizophrenia", "PTSD",
		"insomnia", "panic disorder", "suicidal ideation",
	},
}

// Specialties returns the known specialty names, sorted.
func Specialties() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether the specialty exists in the catalog.
func Known(specialty string) bool {
	_, ok := catalog[specialty]
	return ok
}

// ForSpecialty returns a copy of the specialty's keyterms. Unknown
// specialties fall back to the default.
func ForSpecialty(specialty string) []string {
	terms, ok := catalog[specialty]
	if !ok {
		terms = catalog[DefaultSpecialty]
	}
	out := make([]string, len(terms))
	copy(out, terms)
	return out
}

// Merge returns the specialty's terms followed by the trimmed, non-empty
// custom terms.
func Merge(specialty string, custom []string) []string {
	terms := ForSpecialty(specialty)
	for _, t := range custom {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// Catalog returns a copy of the full specialty catalog.
func Catalog() map[string][]string {
	out := make(map[string][]string, len(catalog))
	for name := range catalog {
		out[name] = ForSpecialty(name)
	}
	return out
}
