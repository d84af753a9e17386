// Package llm talks to the external model that compares a new case with a
// firm's prior cases.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lawdesk/internal/platform/config"
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

var ErrNotConfigured = errors.New("llm api key not configured")

// Case is an opaque case record as the client stores it.
type Case map[string]interface{}

// Result is the outcome of a comparison. Success is false whenever Error
// is set.
type Result struct {
	Success         bool     `json:"success"`
	AnalysisText    string   `json:"analysis_text,omitempty"`
	SimilarCases    []string `json:"similar_cases,omitempty"`
	Differences     []string `json:"differences,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type Comparer interface {
	Compare(ctx context.Context, newCase Case, priorCases []Case) (Result, error)
}

type Client struct {
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
	http      *http.Client
}

func NewClient(cfg config.LLMConfig) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:  endpoint,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		http:      &http.Client{Timeout: timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = `You are a legal research assistant. Compare the new case with the prior cases.
Reply with a JSON object only: {"analysis": string, "similar_cases": [string], "differences": [string], "recommendations": [string]}.`

func buildPrompt(newCase Case, priorCases []Case) (string, error) {
	nc, err := json.MarshalIndent(newCase, "", "  ")
	if err != nil {
		return "", err
	}
	pc, err := json.MarshalIndent(priorCases, "", "  ")
	if err != nil {
		return "", err
	}
	return "New case:\n" + string(nc) + "\n\nPrior cases:\n" + string(pc), nil
}

func failed(err error) (Result, error) {
	return Result{Success: false, Error: err.Error()}, err
}

// Compare sends one request and never retries. A failure is returned both as
// the error and in the Result.
func (c *Client) Compare(ctx context.Context, newCase Case, priorCases []Case) (Result, error) {
	if c.apiKey == "" {
		return failed(ErrNotConfigured)
	}

	prompt, err := buildPrompt(newCase, priorCases)
	if err != nil {
		return failed(fmt.Errorf("encode cases: %w", err))
	}
	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return failed(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return failed(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return failed(fmt.Errorf("llm request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return failed(fmt.Errorf("read llm response: %w", err))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return failed(fmt.Errorf("decode llm response (HTTP %d): %w", resp.StatusCode, err))
	}
	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if parsed.Error != nil {
			msg += ": " + parsed.Error.Message
		}
		return failed(errors.New("llm error " + msg))
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return failed(errors.New("llm returned no text"))
	}
	return ParseAnalysis(text.String()), nil
}

// ParseAnalysis extracts the structured reply. Text that is not the expected
// JSON becomes the analysis as-is.
func ParseAnalysis(text string) Result {
	var out struct {
		Analysis        string   `json:"analysis"`
		SimilarCases    []string `json:"similar_cases"`
		Differences     []string `json:"differences"`
		Recommendations []string `json:"recommendations"`
	}

	body := text
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		body = text[start : end+1]
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil || out.Analysis == "" {
		return Result{Success: true, AnalysisText: strings.TrimSpace(text)}
	}
	return Result{
		Success:         true,
		AnalysisText:    out.Analysis,
		SimilarCases:    out.SimilarCases,
		Differences:     out.Differences,
		Recommendations: out.Recommendations,
	}
}
