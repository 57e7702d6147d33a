// Package assistant proxies chat turns to an OpenAI-compatible completion
// backend.
package assistant

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/zulandar/matinee/internal/models"
)

// systemPrompt frames the assistant for media-server support conversations.
const systemPrompt = "You are Matinee, a helpful assistant for a home media server. " +
	"Answer questions about the Plex library, requests, and server status. Be concise."

// Request carries one completion invocation.
type Request struct {
	UserID         uint
	Turns          []models.Turn // history including the new user turn, oldest first
	ConversationID string        // backing thread reference, may be empty
}

// Response is a successful completion result.
type Response struct {
	Message        models.Turn
	ConversationID string // possibly rotated by the backend
}

// Completer produces an assistant reply for a conversation. Implemented by
// Client and mocked in tests.
type Completer interface {
	Run(ctx context.Context, req Request) (*Response, error)
}

// Client calls an OpenAI-compatible /v1/chat/completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client // defaults to a 60-second-timeout client
}

// NewClient creates a Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("assistant: base URL is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("assistant: model is required")
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		http:    httpClient,
	}, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	User     string        `json:"user,omitempty"`
}

type completionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Run sends the conversation to the backend and returns the assistant turn.
// An empty reply is an error; callers must not persist anything for it.
func (c *Client) Run(ctx context.Context, req Request) (*Response, error) {
	messages := make([]wireMessage, 0, len(req.Turns)+1)
	messages = append(messages, wireMessage{Role: "system", Content: systemPrompt})
	for _, t := range req.Turns {
		messages = append(messages, wireMessage{Role: t.Role, Content: t.Content})
	}

	body, err := json.Marshal(completionRequest{
		Model:    c.model,
		Messages: messages,
		User:     fmt.Sprintf("matinee-%d", req.UserID),
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("assistant: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assistant: completion call: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("assistant: completion status %d: %s",
			httpResp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var resp completionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("assistant: decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("assistant: backend error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("assistant: empty completion response")
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = resp.ID
	}

	return &Response{
		Message: models.Turn{
			Role:      models.RoleAssistant,
			Content:   resp.Choices[0].Message.Content,
			Timestamp: time.Now(),
		},
		ConversationID: conversationID,
	}, nil
}
