package domain

import "fmt"

// Confidence is the model's confidence in a candidate diagnosis.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Confidences lists the accepted confidence values in display order.
var Confidences = []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow}

// Valid reports whether c is one of the three accepted values.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Source is a citation returned by a search-grounded model response.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Diagnosis is one entry of a differential diagnosis.
// Only ManagementPlan and ManagementPlanSources change after creation.
type Diagnosis struct {
	ID                    string     `json:"id"`
	Label                 string     `json:"label"`
	Confidence            Confidence `json:"confidence"`
	Rationale             string     `json:"rationale"`
	NextSteps             string     `json:"nextSteps"`
	ManagementPlan        string     `json:"managementPlan,omitempty"`
	ManagementPlanSources []Source   `json:"managementPlanSources,omitempty"`
}

// Summary renders the diagnosis as one line for prompt context.
func (d Diagnosis) Summary() string {
	return fmt.Sprintf("- %s (Confidence: %s): %s", d.Label, d.Confidence, d.Rationale)
}
