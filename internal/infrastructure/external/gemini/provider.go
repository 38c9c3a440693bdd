package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/infrastructure/external/inference"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-1.5-flash"

// Provider implements port.Inference using Google Gemini
type Provider struct {
	client    *genai.Client
	modelName string
	prompts   *inference.PromptConfig
	logger    *zap.Logger
}

// NewProvider creates a Gemini provider. Call Close when done.
func NewProvider(ctx context.Context, apiKey, modelName string, prompts *inference.PromptConfig, logger *zap.Logger) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if prompts == nil {
		prompts = inference.DefaultPrompts()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Provider{
		client:    client,
		modelName: modelName,
		prompts:   prompts,
		logger:    logger,
	}, nil
}

// Name identifies the provider in logs
func (p *Provider) Name() string {
	return "gemini:" + p.modelName
}

// Detect asks whether the frame shows a receipt
func (p *Provider) Detect(ctx context.Context, image []byte) (*port.DetectionResult, error) {
	text, err := p.generate(ctx, p.prompts.Detection, p.prompts.Detection.UserTemplate, image)
	if err != nil {
		return nil, err
	}
	return inference.DecodeDetection(text)
}

// ExtractFields reads the receipt fields from the frame
func (p *Provider) ExtractFields(ctx context.Context, image []byte) (*port.ExtractionResult, error) {
	text, err := p.generate(ctx, p.prompts.Extraction, p.prompts.Extraction.UserTemplate, image)
	if err != nil {
		return nil, err
	}
	return inference.DecodeExtraction(text)
}

// ClassifyAccount suggests a debit account from the extracted fields
func (p *Provider) ClassifyAccount(ctx context.Context, in port.ClassificationInput) (*port.ClassificationResult, error) {
	prompt, err := p.prompts.RenderClassification(in)
	if err != nil {
		return nil, fmt.Errorf("render classification prompt: %w", err)
	}

	text, err := p.generate(ctx, p.prompts.Classification, prompt, nil)
	if err != nil {
		return nil, err
	}
	return inference.DecodeClassification(text)
}

// Close closes the Gemini client
func (p *Provider) Close() error {
	return p.client.Close()
}

func (p *Provider) generate(ctx context.Context, cfg inference.Prompt, prompt string, image []byte) (string, error) {
	// models carry their sampling settings, so each task gets its own handle
	model := p.client.GenerativeModel(p.modelName)
	model.SetTemperature(cfg.Temperature)
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}

	parts := []genai.Part{genai.Text(cfg.System + "\n\n" + prompt)}
	if image != nil {
		parts = append(parts, genai.ImageData("jpeg", image))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		p.logger.Error("Gemini API call failed", zap.Error(err))
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	return text.String(), nil
}
