package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

const (
	// DefaultTemperature is used for answers when ChatParams leaves it unset.
	DefaultTemperature = 0.2

	maxErrorDetail = 512
)

// Client is a client for an OpenAI-compatible chat completions API.
type Client struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	client      *http.Client
	limiter     *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRateLimit throttles outgoing requests to rps per second. rps <= 0 disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.Temperature = t }
}

// NewClient creates a new LLM client. An empty baseURL yields a client whose
// calls all fail with ErrNotConfigured.
func NewClient(baseURL, apiKey, model string, opts ...Option) *Client {
	c := &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		Model:       model,
		Temperature: DefaultTemperature,
		client:      http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has an endpoint to talk to.
func (c *Client) Configured() bool {
	return c != nil && c.BaseURL != ""
}

func (c *Client) endpoint() string {
	if strings.HasSuffix(c.BaseURL, "/v1") {
		return c.BaseURL + "/chat/completions"
	}
	return c.BaseURL + "/v1/chat/completions"
}

func (c *Client) newRequest(ctx context.Context, messages []Message, params ChatParams, stream bool) (*http.Request, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	payload := ChatRequest{
		Model:       c.Model,
		Messages:    messages,
		Stream:      stream,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}
	if params.Model != "" {
		payload.Model = params.Model
	}
	if payload.Temperature == nil {
		payload.Temperature = Temp(c.Temperature)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	detail := strings.TrimSpace(string(raw))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		detail = strings.TrimSpace(body.Error.Message)
	}
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail]
	}
	return &StatusError{StatusCode: resp.StatusCode, Detail: detail}
}

// Chat sends a single user message and returns the reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	return c.ChatWithMessages(ctx, []Message{{Role: "user", Content: message}}, ChatParams{})
}

// ChatWithMessages sends a chat completion request and returns the first choice.
func (c *Client) ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	req, err := c.newRequest(ctx, messages, params, false)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// StreamChatWithMessages sends a streaming chat completion request, calls callback
// for every content fragment and returns the concatenated text. Cancelling ctx
// stops reading the stream and returns ctx.Err().
func (c *Client) StreamChatWithMessages(ctx context.Context, messages []Message, params ChatParams, callback func(chunk string) error) (string, error) {
	req, err := c.newRequest(ctx, messages, params, true)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	const (
		dataPrefix = "data: "
		doneMarker = "[DONE]"
	)

	var (
		full       strings.Builder
		frames     int
		decoded    int
		terminated bool
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if data == doneMarker {
			terminated = true
			break
		}

		frames++
		var streamResp streamResponse
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			// Skip malformed chunks
			continue
		}
		decoded++
		if len(streamResp.Choices) == 0 {
			continue
		}
		if chunk := streamResp.Choices[0].Delta.Content; chunk != "" {
			full.WriteString(chunk)
			if err := callback(chunk); err != nil {
				return full.String(), fmt.Errorf("callback error: %w", err)
			}
		}
		if streamResp.Choices[0].FinishReason != "" {
			terminated = true
			break
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return full.String(), ctxErr
		}
		return full.String(), fmt.Errorf("failed to read stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return full.String(), err
	}
	if frames > 0 && decoded == 0 {
		return full.String(), fmt.Errorf("%w: none of %d frames could be decoded", ErrMalformedStream, frames)
	}
	if !terminated {
		return full.String(), fmt.Errorf("%w: stream ended without [DONE] or finish_reason", ErrMalformedStream)
	}
	return full.String(), nil
}

// Classify runs a deterministic single-shot completion for prompt and returns the
// trimmed reply. It is used for short label outputs.
func (c *Client) Classify(ctx context.Context, prompt string) (string, error) {
	reply, err := c.ChatWithMessages(ctx, []Message{{Role: "user", Content: prompt}}, ChatParams{
		MaxTokens:   8,
		Temperature: Temp(0),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}
