package inference

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"gopkg.in/yaml.v3"
)

//go:embed default_prompts.yaml
var defaultPromptsYAML []byte

// Prompt is one task's instructions and sampling parameters
type Prompt struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts for every inference task
type PromptConfig struct {
	Detection      Prompt `yaml:"detection"`
	Extraction     Prompt `yaml:"extraction"`
	Classification Prompt `yaml:"classification"`
}

// DefaultPrompts returns the built-in Japanese prompts
func DefaultPrompts() *PromptConfig {
	var prompts PromptConfig
	if err := yaml.Unmarshal(defaultPromptsYAML, &prompts); err != nil {
		panic(fmt.Sprintf("built-in prompts are invalid: %v", err))
	}
	return &prompts
}

// LoadPrompts reads a YAML prompt file on top of the built-in defaults.
// Tasks missing from the file keep their default prompt.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	prompts := DefaultPrompts()
	if promptsPath == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	for name, p := range map[string]Prompt{
		"detection":      prompts.Detection,
		"extraction":     prompts.Extraction,
		"classification": prompts.Classification,
	} {
		if p.UserTemplate == "" {
			return nil, fmt.Errorf("prompt %q has an empty user_template", name)
		}
		if _, err := template.New(name).Parse(p.UserTemplate); err != nil {
			return nil, fmt.Errorf("prompt %q: %w", name, err)
		}
	}

	return prompts, nil
}

// classificationData is what the classification template sees
type classificationData struct {
	StoreName   string
	TotalAmount string
	TaxInfo     string
	TextPrefix  string
}

// RenderClassification fills the classification template, writing 不明 for unknown values
func (c *PromptConfig) RenderClassification(in port.ClassificationInput) (string, error) {
	data := classificationData{
		StoreName:   "不明",
		TotalAmount: "不明",
		TaxInfo:     "不明",
		TextPrefix:  "不明",
	}
	if in.StoreName != nil && *in.StoreName != "" {
		data.StoreName = *in.StoreName
	}
	if in.TotalAmount != nil {
		data.TotalAmount = fmt.Sprintf("%d", *in.TotalAmount)
	}
	if in.TaxHint != nil && *in.TaxHint != "" {
		data.TaxInfo = *in.TaxHint
	}
	if in.TextPrefix != "" {
		data.TextPrefix = in.TextPrefix
	}

	return renderTemplate(c.Classification.UserTemplate, data)
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
