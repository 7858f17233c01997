// Package domain contains core domain types for the MedEndorse application.
package domain

import "strings"

// CaseContext is the clinical input a clinician builds up for one case.
type CaseContext struct {
	Notes         string `json:"notes"`
	ImageAnalysis string `json:"imageAnalysis"`
}

// HasInput reports whether either notes or image analysis carry text.
func (c CaseContext) HasInput() bool {
	return strings.TrimSpace(c.Notes) != "" || strings.TrimSpace(c.ImageAnalysis) != ""
}

// AppendDictation appends a committed dictation fragment to the notes,
// separating it from existing text with a single space.
func (c *CaseContext) AppendDictation(fragment string) {
	if fragment == "" {
		return
	}
	if len(c.Notes) > 0 {
		c.Notes = c.Notes + " " + fragment
		return
	}
	c.Notes = fragment
}
