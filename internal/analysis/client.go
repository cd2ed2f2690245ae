// Package analysis talks to an OpenAI compatible vision model and turns
// product photos into a listing draft.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"knitkart/internal/jobs"
	"knitkart/internal/models"
)

const maxErrorBody = 4 << 10

var ErrEmptyAnalysis = errors.New("model returned no analysis")

const systemPrompt = `You write product listings for a marketplace of handmade knitted and crocheted goods.
Look at the photos and reply with a single JSON object with these keys:
"title" (max 80 characters), "description" (2-4 sentences), "category",
"tags" (up to 10 lowercase keywords), "materials", "colors",
"suggestedPrice" (number in USD, 0 if unsure). Reply with JSON only.`

// URLResolver turns a stored object key into a URL the model can fetch.
type URLResolver interface {
	PresignedURL(ctx context.Context, key string) (string, error)
}

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
}

type Client struct {
	cfg  Config
	http *http.Client
	urls URLResolver
	log  zerolog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, urls URLResolver, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient, urls: urls, log: log}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze implements jobs.Analyzer.
func (c *Client) Analyze(ctx context.Context, input jobs.Input) (models.ProductAnalysis, error) {
	parts, err := c.userContent(ctx, input)
	if err != nil {
		return models.ProductAnalysis{}, err
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: parts},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return models.ProductAnalysis{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return models.ProductAnalysis{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.ProductAnalysis{}, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return models.ProductAnalysis{}, fmt.Errorf("model returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.ProductAnalysis{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return models.ProductAnalysis{}, ErrEmptyAnalysis
	}

	result, err := ParseAnalysis(out.Choices[0].Message.Content)
	if err != nil {
		return models.ProductAnalysis{}, err
	}
	c.log.Debug().Int("images", len(input.Images)).Str("title", result.Title).Msg("analysis received")
	return result, nil
}

func (c *Client) userContent(ctx context.Context, input jobs.Input) ([]contentPart, error) {
	text := "Describe this item for a listing."
	if input.Hint != "" {
		text += " Seller notes: " + input.Hint
	}
	parts := []contentPart{{Type: "text", Text: text}}

	for _, ref := range input.Images {
		u, err := c.resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u}})
	}
	return parts, nil
}

func (c *Client) resolve(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
		return ref, nil
	}
	if c.urls == nil {
		return "", fmt.Errorf("no resolver for image %q", ref)
	}
	return c.urls.PresignedURL(ctx, ref)
}

// ParseAnalysis decodes the model's reply. Markdown code fences around the
// JSON are tolerated.
func ParseAnalysis(content string) (models.ProductAnalysis, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var result models.ProductAnalysis
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return models.ProductAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	result.Title = strings.TrimSpace(result.Title)
	if result.Title == "" {
		return models.ProductAnalysis{}, ErrEmptyAnalysis
	}
	if result.SuggestedPrice < 0 {
		result.SuggestedPrice = 0
	}
	return result, nil
}
