package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/providers"
	"github.com/ggonzalez94/defi-chat/internal/registry"
)

const (
	DefaultModel     = "claude-3-5-haiku-latest"
	anthropicVersion = "2023-06-01"
	maxTokens        = 256
)

const systemPrompt = `You extract cryptocurrency references from a user's message.
Reply with only a JSON object of the form {"tokens": ["SYMBOL", ...], "currency": "usd"}.
Use ticker symbols in upper case. Keep a leading "$" if the user wrote one. If no token is mentioned, return an empty list.`

// Client is the optional last-resort extractor backed by the Anthropic
// Messages API.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	model   string
}

var _ providers.Extractor = (*Client)(nil)

func New(httpClient *httpx.Client, apiKey, modelName string) *Client {
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultModel
	}
	return &Client{http: httpClient, baseURL: registry.AnthropicBaseURL, apiKey: strings.TrimSpace(apiKey), model: modelName}
}

// WithBaseURL points the client at an alternate Messages-compatible endpoint.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if strings.TrimSpace(baseURL) != "" {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "llm",
		Type:          "extractor",
		RequiresKey:   true,
		Capabilities:  []string{"intent.extract"},
		KeyEnvVarName: "DEFICHAT_LLM_API_KEY",
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) Extract(ctx context.Context, text string) (providers.Extraction, error) {
	if c.apiKey == "" {
		return providers.Extraction{}, clierr.New(clierr.CodeAuth, "missing required API key for llm extractor (DEFICHAT_LLM_API_KEY)")
	}
	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: text}},
	})
	if err != nil {
		return providers.Extraction{}, clierr.Wrap(clierr.CodeInternal, "encode llm request", err)
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
	var resp messagesResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/messages", body, headers, &resp); err != nil {
		return providers.Extraction{}, err
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return parseExtraction(reply.String())
}

// parseExtraction tolerates markdown code fences and prose around the JSON object.
func parseExtraction(raw string) (providers.Extraction, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	if start, end := strings.Index(clean, "{"), strings.LastIndex(clean, "}"); start >= 0 && end > start {
		clean = clean[start : end+1]
	}

	var out providers.Extraction
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return providers.Extraction{}, clierr.Wrap(clierr.CodeUnavailable, "decode llm extraction", err)
	}
	tokens := make([]string, 0, len(out.Tokens))
	for _, tok := range out.Tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if !strings.HasPrefix(tok, "$") {
			tok = strings.ToUpper(tok)
		}
		tokens = append(tokens, tok)
	}
	out.Tokens = tokens
	out.Currency = strings.ToLower(strings.TrimSpace(out.Currency))
	if out.Currency == "" {
		out.Currency = "usd"
	}
	return out, nil
}
