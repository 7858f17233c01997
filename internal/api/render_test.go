package api

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/medendorse/internal/consult"
	"github.com/ashureev/medendorse/internal/domain"
)

func TestRenderMarkdown(t *testing.T) {
	t.Parallel()

	html := string(renderMarkdown("## First-line\n\n* Rest\n* **Fluids**"))
	assert.Contains(t, html, "<h2>First-line</h2>")
	assert.Contains(t, html, "<li>Rest</li>")
	assert.Contains(t, html, "<strong>Fluids</strong>")
}

func TestRenderMarkdownOmitsRawHTML(t *testing.T) {
	t.Parallel()

	html := string(renderMarkdown("<script>alert(1)</script>"))
	assert.NotContains(t, html, "<script>")
}

func TestCaseViewJSON(t *testing.T) {
	t.Parallel()

	snap := consult.Snapshot{
		ID:   "01ABC",
		View: domain.ViewDiagnosis,
		Diagnosis: consult.DiagnosisSnapshot{
			Items: []domain.Diagnosis{
				{ID: "d1", Label: "Influenza", Confidence: domain.ConfidenceHigh, ManagementPlan: "- rest"},
				{ID: "d2", Label: "Common cold", Confidence: domain.ConfidenceLow},
			},
			Plans: map[int]consult.PlanStatus{1: {Loading: true}},
		},
	}

	raw, err := json.Marshal(NewCaseView(snap))
	require.NoError(t, err)

	var got struct {
		ID        string `json:"id"`
		Diagnosis struct {
			Items []struct {
				Label              string `json:"label"`
				ManagementPlan     string `json:"managementPlan"`
				ManagementPlanHTML string `json:"managementPlanHtml"`
			} `json:"items"`
			Plans map[string]struct {
				Loading bool `json:"loading"`
			} `json:"plans"`
		} `json:"diagnosis"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, "01ABC", got.ID)
	require.Len(t, got.Diagnosis.Items, 2)
	assert.Equal(t, "- rest", got.Diagnosis.Items[0].ManagementPlan)
	assert.True(t, strings.Contains(got.Diagnosis.Items[0].ManagementPlanHTML, "<li>rest</li>"))
	assert.Empty(t, got.Diagnosis.Items[1].ManagementPlanHTML)
	assert.True(t, got.Diagnosis.Plans["1"].Loading)
}
