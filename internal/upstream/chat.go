package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 8 << 20

// Config controls upstream client construction.
type Config struct {
	APIKey       string
	BaseURL      string
	ChatModel    string
	STTModel     string
	TTSModel     string
	TTSVoice     string
	SystemPrompt string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// ChatClient forwards a single user message to the chat-completions endpoint
// and hands back the upstream body untouched.
type ChatClient struct {
	apiKey       string
	url          string
	model        string
	systemPrompt string
	client       *http.Client
}

func NewChatClient(cfg Config) *ChatClient {
	return &ChatClient{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		url:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/chat/completions",
		model:        cfg.ChatModel,
		systemPrompt: cfg.SystemPrompt,
		client:       cfg.httpClient(),
	}
}

// Relay returns the raw chat-completion JSON for message.
func (c *ChatClient) Relay(ctx context.Context, message string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: message},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Status: res.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &Error{Status: res.StatusCode, Payload: body}
	}
	return body, nil
}
