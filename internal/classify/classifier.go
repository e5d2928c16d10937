// Package classify calls the external classification service to label an
// email body. The service returns an arbitrary string; validation onto the
// closed label set happens downstream.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/nhle/onebox/internal/model"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 64
	defaultAPIURL    = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"

	// bodyLimit caps how much of the email body is sent for classification.
	bodyLimit = 4000
)

// Categorizer labels email bodies through the Anthropic Messages API.
type Categorizer struct {
	apiKey    string
	apiURL    string
	modelName string
	maxTokens int
	client    *http.Client
}

// New creates a Categorizer from the classifier configuration.
func New(cfg model.ClassifierConfig) *Categorizer {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Categorizer{
		apiKey:    cfg.APIKey,
		apiURL:    defaultAPIURL,
		modelName: modelName,
		maxTokens: maxTokens,
		client:    &http.Client{},
	}
}

// Classify sends the email body to the classification service and returns
// its raw label string. The caller is responsible for coercing the result
// onto the label set.
func (c *Categorizer) Classify(ctx context.Context, text string) (string, error) {
	if len(text) > bodyLimit {
		// Back off to a rune boundary so the cut never produces invalid UTF-8.
		cut := bodyLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	reqBody := apiRequest{
		Model:     c.modelName,
		MaxTokens: c.maxTokens,
		System:    systemPrompt(),
		Messages: []apiMessage{
			{Role: "user", Content: text},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.apiURL, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("classifier error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("classifier error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}

	return strings.TrimSpace(strings.Join(parts, "")), nil
}

// systemPrompt instructs the model to answer with exactly one label.
func systemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You categorize sales outreach emails. ")
	sb.WriteString("Reply with exactly one of the following labels and ")
	sb.WriteString("nothing else:\n")
	for _, label := range model.Labels() {
		sb.WriteString("- ")
		sb.WriteString(string(label))
		sb.WriteString("\n")
	}
	sb.WriteString("\nUse Unlabelled when no other label fits.")

	return sb.String()
}

// --- Messages API types ---

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []apiContentBlock `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
