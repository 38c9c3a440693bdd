// Command scan-frame runs detection, extraction and classification on a
// single image with the configured inference provider. It is meant for
// checking credentials and prompt changes without uploading a video.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-scan/internal/application/pipeline"
	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/container"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
)

func main() {
	provider := flag.String("provider", "openai", "Inference provider: openai or gemini")
	model := flag.String("model", "", "Model name (provider default when empty)")
	prompts := flag.String("prompts", "", "Prompt override YAML")
	timeout := flag.Duration("timeout", 60*time.Second, "Timeout per call")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: scan-frame [--provider openai|gemini] [--model m] [--prompts file] image.jpg")
		os.Exit(2)
	}

	_ = gotenv.Load()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	image, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	cfg := container.DefaultConfig().Inference
	cfg.Provider = *provider
	cfg.PromptsPath = *prompts
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if *model != "" {
		cfg.OpenAIModel = *model
		cfg.GeminiModel = *model
	}

	ctx := context.Background()
	bundle, err := container.ProvideInference(ctx, &cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	defer bundle.Close()
	inf := bundle.Provider

	fmt.Printf("=== %s ===\n\n", inf.Name())

	callCtx, cancel := context.WithTimeout(ctx, *timeout)
	detection, err := inf.Detect(callCtx, image)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}
	printJSON("Detection", detection)
	if detection.Verdict != entity.VerdictReceipt {
		fmt.Println("Not a receipt, stopping.")
		return
	}

	callCtx, cancel = context.WithTimeout(ctx, *timeout)
	fields, err := inf.ExtractFields(callCtx, image)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}
	printJSON("Extraction", fields)

	ocr := pipeline.NormalizeExtraction(fields)
	printJSON("Normalized", ocr)

	in := port.ClassificationInput{
		StoreName:   ocr.StoreName,
		TotalAmount: ocr.TotalAmount,
		TaxHint:     ocr.TaxHint,
		TextPrefix:  ocr.RawText,
	}
	callCtx, cancel = context.WithTimeout(ctx, *timeout)
	account, err := inf.ClassifyAccount(callCtx, in)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Classification failed: %v\n", err)
		os.Exit(1)
	}
	printJSON("Classification", account)
}

func printJSON(title string, v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("%s:\n%s\n\n", title, b)
}
