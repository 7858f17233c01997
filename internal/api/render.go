package api

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"

	"github.com/ashureev/medendorse/internal/consult"
	"github.com/ashureev/medendorse/internal/domain"
)

// CaseView is the client representation of a case. Management plans are
// delivered both as markdown and as rendered HTML.
type CaseView struct {
	consult.Snapshot
	Diagnosis DiagnosisView `json:"diagnosis"`
}

// DiagnosisView mirrors consult.DiagnosisSnapshot with rendered plans.
type DiagnosisView struct {
	Items   []DiagnosisItem            `json:"items"`
	Loading bool                       `json:"loading"`
	Error   string                     `json:"error,omitempty"`
	Plans   map[int]consult.PlanStatus `json:"plans,omitempty"`
}

// DiagnosisItem is one diagnosis with its plan rendered to HTML.
type DiagnosisItem struct {
	domain.Diagnosis
	ManagementPlanHTML template.HTML `json:"managementPlanHtml,omitempty"`
}

// NewCaseView builds the client view of a snapshot.
func NewCaseView(s consult.Snapshot) CaseView {
	v := CaseView{
		Snapshot: s,
		Diagnosis: DiagnosisView{
			Loading: s.Diagnosis.Loading,
			Error:   s.Diagnosis.Error,
			Plans:   s.Diagnosis.Plans,
		},
	}
	if s.Diagnosis.Items != nil {
		v.Diagnosis.Items = make([]DiagnosisItem, len(s.Diagnosis.Items))
		for i, d := range s.Diagnosis.Items {
			v.Diagnosis.Items[i] = NewDiagnosisItem(d)
		}
	}
	return v
}

// NewDiagnosisItem renders d's management plan, if any.
func NewDiagnosisItem(d domain.Diagnosis) DiagnosisItem {
	item := DiagnosisItem{Diagnosis: d}
	if d.ManagementPlan != "" {
		item.ManagementPlanHTML = renderMarkdown(d.ManagementPlan)
	}
	return item
}

// renderMarkdown converts a markdown string to HTML.
// Falls back to escaped plain text if conversion fails.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md)) //nolint:gosec // escaped above
	}
	return template.HTML(buf.String()) //nolint:gosec // goldmark omits raw HTML by default
}
