package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const detectionSchema = `{
  "type": "object",
  "required": ["result", "confidence"],
  "properties": {
    "result": {"type": "string"},
    "confidence": {"type": "number"}
  }
}`

const extractionSchema = `{
  "type": "object",
  "properties": {
    "date": {"type": ["string", "null"]},
    "store_name": {"type": ["string", "null"]},
    "total_amount": {"type": ["number", "string", "null"]},
    "total_amount_candidates": {
      "type": ["array", "null"],
      "items": {"type": ["number", "string", "null"]}
    },
    "tax_info": {"type": ["string", "null"]},
    "invoice_number": {"type": ["string", "null"]},
    "ocr_raw_text": {"type": ["string", "null"]},
    "confidence": {"type": ["number", "null"]}
  }
}`

const classificationSchema = `{
  "type": "object",
  "required": ["debit_account"],
  "properties": {
    "debit_account": {"type": "string"},
    "debit_account_candidate2": {"type": ["string", "null"]},
    "confidence": {"type": ["number", "null"]},
    "reason": {"type": ["string", "null"]}
  }
}`

var (
	detectionValidator      = mustCompile("detection.json", detectionSchema)
	extractionValidator     = mustCompile("extraction.json", extractionSchema)
	classificationValidator = mustCompile("classification.json", classificationSchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// detectionAnswer is the wire shape the detection prompt asks for
type detectionAnswer struct {
	Result     string  `json:"result"`
	Confidence float64 `json:"confidence"`
}

// classificationAnswer tolerates a null reason
type classificationAnswer struct {
	DebitAccount           string   `json:"debit_account"`
	DebitAccountCandidate2 *string  `json:"debit_account_candidate2"`
	Confidence             *float64 `json:"confidence"`
	Reason                 *string  `json:"reason"`
}

// DecodeDetection parses a detection answer
func DecodeDetection(content string) (*port.DetectionResult, error) {
	var answer detectionAnswer
	if err := decode(content, detectionValidator, &answer); err != nil {
		return nil, fmt.Errorf("decode detection: %w", err)
	}
	return &port.DetectionResult{
		Verdict:    strings.ToLower(strings.TrimSpace(answer.Result)),
		Confidence: answer.Confidence,
	}, nil
}

// DecodeExtraction parses an OCR answer. Amounts stay raw for the normalizer.
func DecodeExtraction(content string) (*port.ExtractionResult, error) {
	var result port.ExtractionResult
	if err := decode(content, extractionValidator, &result); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return &result, nil
}

// DecodeClassification parses an account suggestion
func DecodeClassification(content string) (*port.ClassificationResult, error) {
	var answer classificationAnswer
	if err := decode(content, classificationValidator, &answer); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}

	result := &port.ClassificationResult{
		DebitAccount:           strings.TrimSpace(answer.DebitAccount),
		DebitAccountCandidate2: answer.DebitAccountCandidate2,
	}
	if answer.Confidence != nil {
		result.Confidence = *answer.Confidence
	}
	if answer.Reason != nil {
		result.Reason = *answer.Reason
	}
	return result, nil
}

// decode extracts the JSON object from content, validates it and unmarshals into out.
// Every failure wraps port.ErrMalformedResponse.
func decode(content string, schema *jsonschema.Schema, out interface{}) error {
	raw := ExtractJSON(content)
	if raw == "" {
		return fmt.Errorf("%w: no JSON object in %q", port.ErrMalformedResponse, preview(content))
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("%w: %v", port.ErrMalformedResponse, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", port.ErrMalformedResponse, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", port.ErrMalformedResponse, err)
	}
	return nil
}

// ExtractJSON returns the first balanced JSON object in content,
// skipping markdown fences and any prose around it
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

// findJSONEnd finds the end of the object opened at start
func findJSONEnd(content string, start int) int {
	depth := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		c := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if c == '\\' && inString {
			escapeNext = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}

	return -1
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return s
}
