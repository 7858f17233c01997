package agent

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/ashureev/medendorse/internal/domain"
	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey         string
	BaseURL        string // overrides the API endpoint; used in tests
	ImageModel     string
	DiagnosisModel string
	PlanModel      string
	ChatModel      string
}

// GeminiClient calls hosted Gemini models through the GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *slog.Logger
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Info("Gemini client ready",
		"image_model", cfg.ImageModel,
		"diagnosis_model", cfg.DiagnosisModel,
		"plan_model", cfg.PlanModel,
		"chat_model", cfg.ChatModel,
	)

	return &GeminiClient{client: client, cfg: cfg, logger: logger}, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (c *GeminiClient) Close() {}

// AnalyzeImage sends the image bytes and instruction in a single user turn.
func (c *GeminiClient) AnalyzeImage(ctx context.Context, req ImageRequest) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Data, req.MIMEType),
			genai.NewPartFromText(req.Instruction),
		}, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.ImageModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("image analysis request failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Diagnose requests a JSON array constrained by diagnosisSchema.
func (c *GeminiClient) Diagnose(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   diagnosisSchema(),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.DiagnosisModel, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("diagnosis request failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ManagementPlan requests guideline text with the Google Search tool enabled.
func (c *GeminiClient) ManagementPlan(ctx context.Context, prompt string) (*PlanResult, error) {
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.PlanModel, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("management plan request failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, ErrNoPlan
	}
	return &PlanResult{Text: text, Sources: groundingSources(resp)}, nil
}

// StartChat creates a chat with an empty history and the given system instruction.
func (c *GeminiClient) StartChat(ctx context.Context, systemInstruction string) (ChatSession, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}
	chat, err := c.client.Chats.Create(ctx, c.cfg.ChatModel, config, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return &geminiChat{chat: chat}, nil
}

type geminiChat struct {
	chat *genai.Chat
}

func (g *geminiChat) SendStream(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range g.chat.SendMessageStream(ctx, genai.Part{Text: message}) {
			if err != nil {
				yield("", fmt.Errorf("chat stream error: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func diagnosisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"potentialDiagnosis": {Type: genai.TypeString},
				"confidence": {
					Type: genai.TypeString,
					Enum: []string{
						string(domain.ConfidenceHigh),
						string(domain.ConfidenceMedium),
						string(domain.ConfidenceLow),
					},
				},
				"rationale": {Type: genai.TypeString},
				"nextSteps": {Type: genai.TypeString},
			},
			Required: []string{"potentialDiagnosis", "confidence", "rationale", "nextSteps"},
		},
	}
}

// groundingSources returns the web citations of the first candidate, unfiltered.
func groundingSources(resp *genai.GenerateContentResponse) []domain.Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var sources []domain.Source
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		sources = append(sources, domain.Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return sources
}
