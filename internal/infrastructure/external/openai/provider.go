package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/infrastructure/external/inference"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Provider implements port.Inference using OpenAI chat completions
type Provider struct {
	client  *openai.Client
	model   string
	prompts *inference.PromptConfig
	logger  *zap.Logger
}

// NewProvider creates a new OpenAI inference provider.
// baseURL is optional and points the client at a compatible endpoint.
func NewProvider(apiKey, model, baseURL string, prompts *inference.PromptConfig, logger *zap.Logger) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4o
	}
	if prompts == nil {
		prompts = inference.DefaultPrompts()
	}

	return &Provider{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		prompts: prompts,
		logger:  logger,
	}
}

// Name identifies the provider in logs
func (p *Provider) Name() string {
	return "openai:" + p.model
}

// Detect asks whether the frame shows a receipt
func (p *Provider) Detect(ctx context.Context, image []byte) (*port.DetectionResult, error) {
	content, err := p.complete(ctx, p.prompts.Detection, p.prompts.Detection.UserTemplate, image)
	if err != nil {
		return nil, err
	}
	return inference.DecodeDetection(content)
}

// ExtractFields reads the receipt fields from the frame
func (p *Provider) ExtractFields(ctx context.Context, image []byte) (*port.ExtractionResult, error) {
	content, err := p.complete(ctx, p.prompts.Extraction, p.prompts.Extraction.UserTemplate, image)
	if err != nil {
		return nil, err
	}

	result, err := inference.DecodeExtraction(content)
	if err != nil {
		p.logger.Warn("Failed to parse extraction response", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// ClassifyAccount suggests a debit account from the extracted fields
func (p *Provider) ClassifyAccount(ctx context.Context, in port.ClassificationInput) (*port.ClassificationResult, error) {
	prompt, err := p.prompts.RenderClassification(in)
	if err != nil {
		return nil, fmt.Errorf("render classification prompt: %w", err)
	}

	content, err := p.complete(ctx, p.prompts.Classification, prompt, nil)
	if err != nil {
		return nil, err
	}
	return inference.DecodeClassification(content)
}

// complete sends one chat request. A non-nil image is attached as a JPEG data URL.
func (p *Provider) complete(ctx context.Context, cfg inference.Prompt, prompt string, image []byte) (string, error) {
	user := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}
	if image != nil {
		user.Content = ""
		user.MultiContent = []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(image)),
					Detail: openai.ImageURLDetailHigh,
				},
			},
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: cfg.System,
			},
			user,
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		p.logger.Error("OpenAI API call failed", zap.Error(err))
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	return resp.Choices[0].Message.Content, nil
}
