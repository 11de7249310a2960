package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured is returned by every call when no model endpoint is configured.
var ErrNotConfigured = errors.New("language model not configured")

// ErrMalformedStream is returned when a streamed completion ends without a
// terminator or carries no decodable frame.
var ErrMalformedStream = errors.New("malformed stream")

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	// If nil, the client's default temperature is used.
	Temperature *float64
}

// Temp returns a pointer to t for use in ChatParams.
func Temp(t float64) *float64 {
	return &t
}

// ChatRequest represents the request payload for chat completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// ChatChoice represents a single choice in the chat response.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse represents the response from the chat completions API.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Choices []ChatChoice `json:"choices"`
}

type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StatusError is returned when the chat endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Detail     string
}

// Unauthorized reports whether the endpoint rejected the credentials.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("LLM request failed (%d)", e.StatusCode)
	if e.Unauthorized() {
		msg = "LLM unauthorized (check LLM_API_KEY and LLM_BASE_URL)"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
