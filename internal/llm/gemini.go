// Package llm provides a Gemini-backed implementation of the analyzer
// interface, for running without the HTTP analysis service.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/raine/visual-tagger/internal/analyzer"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash-lite"

const (
	// maxTags matches the HTTP analysis service's per-image tag limit.
	maxTags = 5
	// minTagConfidence matches the service's confidence threshold; weaker
	// tags are dropped rather than shown.
	minTagConfidence = 0.1
)

const geminiTagPrompt = `Analyze this image and produce descriptive tags for its visual content.

Respond in JSON format with a single field:
- tags: a list of up to 5 objects, each with "tag" (a short descriptive phrase for something visible in the image) and "confidence" (your certainty as a number between 0.0 and 1.0). Order the list from most to least confident.

Example response:
{"tags": [{"tag": "a golden retriever sitting in a park", "confidence": 0.87}, {"tag": "dog outdoors on grass", "confidence": 0.82}]}

Respond ONLY with the JSON object, no markdown or other text.`

// GeminiAnalyzer uses Google's Gemini API for image tagging.
type GeminiAnalyzer struct {
	client *genai.Client
}

// NewGeminiAnalyzer creates a new Gemini-based analyzer.
// It uses the GEMINI_API_KEY environment variable for authentication.
func NewGeminiAnalyzer(ctx context.Context) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client}, nil
}

// AnalyzeImage implements the analyzer interface using Gemini.
func (g *GeminiAnalyzer) AnalyzeImage(ctx context.Context, name string, data []byte) (*analyzer.Analysis, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(geminiTagPrompt),
		{InlineData: &genai.Blob{Data: data, MIMEType: detectMIMEType(data)}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	elapsed := time.Since(start)

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}

	tags, err := parseTags(result.Text())
	if err != nil {
		return nil, err
	}

	width, height := imageDimensions(data)

	log.Info().
		Str("model", geminiModel).
		Str("name", name).
		Int("tagCount", len(tags)).
		Dur("elapsed", elapsed).
		Msg("vision llm call")

	return &analyzer.Analysis{
		Filename:       name,
		Tags:           tags,
		ProcessingTime: elapsed.Seconds(),
		Width:          width,
		Height:         height,
		Model:          geminiModel,
		CompletedAt:    time.Now(),
	}, nil
}

// extractJSONObject extracts a JSON object from text that may contain
// markdown code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

func parseTags(text string) ([]analyzer.Tag, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var parsed struct {
		Tags []analyzer.Tag `json:"tags"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, jsonStr)
	}
	if len(parsed.Tags) == 0 {
		return nil, fmt.Errorf("no tags in response: %s", jsonStr)
	}

	// Clamp confidence into [0,1] rather than trusting the model, and apply
	// the same threshold and cap the HTTP backend enforces server-side
	tags := make([]analyzer.Tag, 0, len(parsed.Tags))
	for _, tag := range parsed.Tags {
		if tag.Confidence < minTagConfidence {
			continue
		}
		if tag.Confidence > 1 {
			tag.Confidence = 1
		}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags, nil
}

func detectMIMEType(data []byte) string {
	contentType := http.DetectContentType(data)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "image/jpeg"
	}
	return contentType
}

// imageDimensions decodes just the image header. Returns zeros for formats
// the standard library cannot decode.
func imageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
