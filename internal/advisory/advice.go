package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/intake-agent/internal/llm"
)

// ErrNotConfigured is returned when no model backs legal advice.
var ErrNotConfigured = errors.New("advisory: legal advice model not configured")

// notConfiguredMessage is the body text the frontend expects when
// GROQ_API_KEY is unset.
const notConfiguredMessage = "Groq API key not configured"

const legalSystemPrompt = "You are a helpful legal assistant for VaaniCare, an app for elderly and rural users in India. " +
	"Provide simple, clear legal advice or guidance based on the user's issue. " +
	"If the language is 'ml', respond in Malayalam. Otherwise, respond in English. " +
	"Keep the advice practical and easy to understand. " +
	"Disclaimer: This is for informational purposes only, not a substitute for professional legal advice."

const (
	adviceTemperature = 0.5
	adviceMaxTokens   = 1024
	adviceTimeout     = 30 * time.Second
)

// Advisor answers free-text legal questions with a chat model.
type Advisor struct {
	client  llm.Client
	timeout time.Duration
}

// NewAdvisor accepts a nil client; every call then fails with ErrNotConfigured.
func NewAdvisor(client llm.Client) *Advisor {
	return &Advisor{client: client, timeout: adviceTimeout}
}

// LegalAdvice asks for guidance on issue in language ("en" when blank, "ml"
// for Malayalam).
func (a *Advisor) LegalAdvice(ctx context.Context, issue, language string) (string, error) {
	if a == nil || a.client == nil {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(language) == "" {
		language = "en"
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := llm.Request{
		System: []string{legalSystemPrompt},
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("User Issue: %s\nPlease provide legal guidance in %s language.", issue, language),
		}},
		MaxTokens:   adviceMaxTokens,
		Temperature: adviceTemperature,
		Purpose:     llm.PurposeLegalAdvice,
	}
	advice, err := llm.Text(ctx, a.client, req)
	if err != nil {
		return "", fmt.Errorf("advisory: legal advice: %w", err)
	}
	return advice, nil
}
