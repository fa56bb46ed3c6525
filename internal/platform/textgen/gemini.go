// Package textgen calls a hosted language model to write short drug
// descriptions.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultModel = "gemini-2.0-flash"

var ErrNotConfigured = errors.New("text generation API key is not configured")

// Describer writes a one-sentence description of a medication.
type Describer interface {
	DescribeMedication(ctx context.Context, medication string) (string, error)
}

// Fallback is the description used whenever the model cannot answer.
func Fallback(medication string) string {
	return medication + " is a medication used to treat specific conditions."
}

type Option func(*GeminiClient)

func WithHTTPClient(c *http.Client) Option {
	return func(g *GeminiClient) { g.httpClient = c }
}

func WithModel(model string) Option {
	return func(g *GeminiClient) { g.model = model }
}

// GeminiClient talks to the generateContent endpoint. It is safe for
// concurrent use and is built once at startup.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGeminiClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *GeminiClient {
	g := &GeminiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// DescribeMedication asks the model for a description. A response without
// text yields Fallback; transport and HTTP errors are returned to the caller.
func (g *GeminiClient) DescribeMedication(ctx context.Context, medication string) (string, error) {
	if g.apiKey == "" {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(generateRequest{Contents: []content{{
		Parts: []part{{Text: fmt.Sprintf("Write a short, one-sentence description of what %s is.", medication)}},
	}}})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call text generation API: %w", redactKey(err, g.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("text generation API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var b strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return Fallback(medication), nil
	}
	return text, nil
}

// redactKey strips the API key from URL errors so it never reaches logs.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED"))
}
