// Command tag-one analyzes a single image with the selected backend and
// prints the raw tags. Useful for poking at a backend without the batch
// machinery.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/raine/visual-tagger/internal/analyzer"
	"github.com/raine/visual-tagger/internal/llm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <image-path> [http|gemini]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  TAGGER_SERVICE_URL - Analysis service URL (http backend)\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY     - Required for the gemini backend\n")
		os.Exit(1)
	}

	imagePath := os.Args[1]
	backend := "http"
	if len(os.Args) >= 3 {
		backend = os.Args[2]
	}

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var a analyzer.Analyzer
	switch backend {
	case "http":
		serviceURL := os.Getenv("TAGGER_SERVICE_URL")
		a = analyzer.NewClient(analyzer.ClientOpts{BaseURL: serviceURL})
	case "gemini":
		gemini, err := llm.NewGeminiAnalyzer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating Gemini analyzer: %v\n", err)
			os.Exit(1)
		}
		a = gemini
	default:
		fmt.Fprintf(os.Stderr, "Unknown backend: %s (use http or gemini)\n", backend)
		os.Exit(1)
	}

	result, err := a.AnalyzeImage(ctx, imagePath, imageData)
	if err != nil {
		cerr := analyzer.Classify(err)
		fmt.Fprintf(os.Stderr, "Analysis failed (%s, retryable=%v): %s\n", cerr.Kind, cerr.Retryable, cerr.Message)
		os.Exit(1)
	}

	fmt.Printf("model: %s, size: %dx%d, took %.2fs\n", result.Model, result.Width, result.Height, result.ProcessingTime)
	for _, tag := range result.Tags {
		fmt.Printf("  %.2f  %s\n", tag.Confidence, tag.Label)
	}
}
