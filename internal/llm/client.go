package llm

import (
	"context"
	"errors"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Purposes label oracle calls for metrics and spans.
const (
	PurposeExtract      = "extract"
	PurposeQuestions    = "questions"
	PurposeSummary      = "summary"
	PurposeConfirmation = "confirmation"
	PurposeLegalAdvice  = "legal_advice"
)

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is a provider-neutral chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is a single completion call. A negative Temperature leaves the
// provider default in place; Model falls back to the client's configured model.
type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
	TopP        float32
	Purpose     string
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Client is the text-completion oracle.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Sampling carries the defaults applied to every prompt built by NewPrompt.
type Sampling struct {
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int32
}

// DefaultSampling matches the settings the intake prompts were tuned with.
func DefaultSampling() Sampling {
	return Sampling{Temperature: 0.7, TopP: 0.9, MaxTokens: 1024}
}

// NewPrompt wraps a single user instruction into a Request.
func (s Sampling) NewPrompt(purpose, prompt string) Request {
	return Request{
		Model:       s.Model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		TopP:        s.TopP,
		Purpose:     purpose,
	}
}

// Text runs req and returns the trimmed completion. Blank completions are
// reported as ErrEmptyResponse.
func Text(ctx context.Context, c Client, req Request) (string, error) {
	if c == nil {
		return "", errors.New("llm: client is nil")
	}
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func pickModel(reqModel, fallback string) string {
	if m := strings.TrimSpace(reqModel); m != "" {
		return m
	}
	return fallback
}
