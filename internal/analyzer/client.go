package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "http://localhost:8000"

	// defaultTimeout applies to lightweight calls like the health check.
	defaultTimeout = 30 * time.Second
	// defaultAnalyzeTimeout applies to the payload-bearing analyze call, which
	// includes the upload and model inference time.
	defaultAnalyzeTimeout = 120 * time.Second
)

// APIError is a non-2xx response from the analysis service. The raw body is
// kept so the classifier can extract the structured error message.
type APIError struct {
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("analysis service returned status %d", e.Status)
}

type ClientOpts struct {
	BaseURL string
	// APIKey, when set, is sent as the X-API-Key header on every request.
	APIKey         string
	AnalyzeTimeout time.Duration
}

// Client talks to the visual content analyzer HTTP API.
type Client struct {
	httpClient     *resty.Client
	analyzeTimeout time.Duration
}

func NewClient(opts ClientOpts) *Client {
	c := Client{analyzeTimeout: defaultAnalyzeTimeout}
	baseURL := DefaultBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	if opts.AnalyzeTimeout > 0 {
		c.analyzeTimeout = opts.AnalyzeTimeout
	}
	c.httpClient = resty.New().
		SetDebug(false).
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		c.httpClient.SetHeader("X-API-Key", opts.APIKey)
	}

	return &c
}

// analyzeResponse mirrors the /analyze response schema.
type analyzeResponse struct {
	Filename       string  `json:"filename"`
	Tags           []Tag   `json:"tags"`
	ProcessingTime float64 `json:"processing_time"`
	ImageSize      [2]int  `json:"image_size"`
	Timestamp      string  `json:"timestamp"`
	ModelInfo      struct {
		ModelName string `json:"model_name"`
	} `json:"model_info"`
}

// HealthStatus is the service's health check response.
type HealthStatus struct {
	Status      string         `json:"status"`
	ModelStatus map[string]any `json:"model_status"`
	SystemInfo  map[string]any `json:"system_info"`
}

// AnalyzeImage uploads one image and returns its tags. Failing responses are
// returned as *APIError so the caller can classify them; transport failures
// are returned as-is.
func (c *Client) AnalyzeImage(ctx context.Context, name string, data []byte) (*Analysis, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.analyzeTimeout)
	defer cancel()

	result := &analyzeResponse{}
	resp, err := c.httpClient.NewRequest().
		SetContext(reqCtx).
		SetFileReader("file", name, bytes.NewReader(data)).
		SetResult(result).
		Post("/analyze")
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.Body()}
	}

	return result.toAnalysis(), nil
}

// Health fetches the service health check.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	result := &HealthStatus{}
	resp, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetResult(result).
		Get("/health")
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.Body()}
	}

	return result, nil
}

func (r *analyzeResponse) toAnalysis() *Analysis {
	return &Analysis{
		Filename:       r.Filename,
		Tags:           r.Tags,
		ProcessingTime: r.ProcessingTime,
		Width:          r.ImageSize[0],
		Height:         r.ImageSize[1],
		Model:          r.ModelInfo.ModelName,
		CompletedAt:    parseTimestamp(r.Timestamp),
	}
}

// parseTimestamp handles the service's ISO 8601 timestamps, which come with
// or without a zone offset. Falls back to the local clock when unparseable.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}
