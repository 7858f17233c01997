package consult

import (
	"fmt"
	"strings"

	"github.com/ashureev/medendorse/internal/domain"
)

const imageInstruction = "Analyze this medical image in detail. Describe any abnormalities, significant findings, and potential clinical implications. This analysis is for a medical professional. Be concise and structured."

const diagnosisPromptTemplate = `
As an expert medical diagnostician, provide a differential diagnosis based on the following clinical information.

Patient Notes:
---
%s
---

Medical Image Analysis:
---
%s
---

Based on the combined information, generate a list of potential diagnoses.
For each diagnosis, provide:
1.  potentialDiagnosis: The name of the condition.
2.  confidence: Your confidence level (High, Medium, or Low).
3.  rationale: A brief explanation of why this diagnosis is being considered, citing evidence from the notes and image analysis.
4.  nextSteps: Recommended next steps, such as specific tests, imaging, or specialist referrals.
`

const planPromptTemplate = `Provide the best and most recent evidence-based management plan for "%s" according to the latest clinical guidelines. Structure the response clearly as markdown, covering pharmacological and non-pharmacological treatments, monitoring, and follow-up.`

const chatInstructionTemplate = `You are MedEndorse AI, an expert clinical assistant. A doctor wants to discuss a case with you.
Here is the information you have so far:

Patient Notes:
---
%s
---

Medical Image Analysis:
---
%s
---

Initial Differential Diagnosis:
---
%s
---

Your role is to engage in a thoughtful conversation with the doctor. Help them analyze the case, consider different possibilities, discuss management plans, and answer their questions. Be concise, helpful, and base your responses on the provided data. Start the conversation by greeting the doctor and confirming you've reviewed the case.`

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

// DiagnosisPrompt builds the differential diagnosis request.
func DiagnosisPrompt(in domain.CaseContext) string {
	return fmt.Sprintf(diagnosisPromptTemplate,
		orPlaceholder(in.Notes, noNotesPlaceholder),
		orPlaceholder(in.ImageAnalysis, noAnalysisPlaceholder),
	)
}

// PlanPrompt builds the management plan request for one diagnosis label.
func PlanPrompt(label string) string {
	return fmt.Sprintf(planPromptTemplate, label)
}

// ChatInstruction builds the system instruction a chat is seeded with.
// A nil diagnoses slice means no diagnosis has been generated.
func ChatInstruction(in domain.CaseContext, diagnoses []domain.Diagnosis) string {
	diagnosisText := noDiagnosesPlaceholder
	if diagnoses != nil {
		lines := make([]string, 0, len(diagnoses))
		for _, d := range diagnoses {
			lines = append(lines, d.Summary())
		}
		diagnosisText = strings.Join(lines, "\n")
	}
	return fmt.Sprintf(chatInstructionTemplate,
		orPlaceholder(in.Notes, noNotesPlaceholder),
		orPlaceholder(in.ImageAnalysis, noAnalysisPlaceholder),
		diagnosisText,
	)
}
