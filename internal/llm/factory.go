package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
	ProviderGroq    = "groq"
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

// ProviderConfig selects and configures one backend.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// AWS is only consulted by the bedrock provider.
	AWS *aws.Config
}

// NewProvider builds the backend named by cfg.Provider.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.Model)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderGroq:
		return NewGroqClient(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderBedrock:
		if cfg.AWS == nil {
			return nil, errors.New("llm: bedrock provider requires aws config")
		}
		if strings.TrimSpace(cfg.Model) == "" {
			return nil, errors.New("llm: bedrock model id is required")
		}
		return NewBedrockClient(bedrockruntime.NewFromConfig(*cfg.AWS), cfg.Model), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
