package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/intake-agent/internal/config"
	"github.com/wolfman30/intake-agent/internal/llm"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

// BuildOracle wires the configured completion backend. The fallback provider
// is optional; if it cannot be built the primary is used alone. The result is
// instrumented with the configured timeout.
func BuildOracle(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, m *metrics.IntakeMetrics, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primaryName := providerName(cfg.LLMProvider)
	primary, err := llm.NewProvider(ctx, providerConfig(cfg, primaryName, cfg.LLMModel, awsCfg))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build %s oracle: %w", primaryName, err)
	}
	client := llm.Client(llm.NewInstrumented(primary, primaryName, m, cfg.LLMTimeout, logger))
	logger.Info("oracle configured", "provider", primaryName)

	fallbackName := providerName(cfg.LLMFallbackProvider)
	if strings.TrimSpace(cfg.LLMFallbackProvider) == "" || fallbackName == primaryName {
		return client, nil
	}
	fallback, err := llm.NewProvider(ctx, providerConfig(cfg, fallbackName, "", awsCfg))
	if err != nil {
		logger.Warn("fallback oracle unavailable; continuing without it", "provider", fallbackName, "error", err)
		return client, nil
	}
	logger.Info("fallback oracle configured", "provider", fallbackName)
	return llm.NewFallbackClient(
		client,
		llm.NewInstrumented(fallback, fallbackName, m, cfg.LLMTimeout, logger),
		logger,
	), nil
}

// BuildLegalAdviceClient returns a Groq client for the advisory surface, or
// nil when no key is configured.
func BuildLegalAdviceClient(cfg *appconfig.Config, m *metrics.IntakeMetrics, logger *logging.Logger) llm.Client {
	if cfg == nil || strings.TrimSpace(cfg.GroqAPIKey) == "" {
		return nil
	}
	client, err := llm.NewGroqClient(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel)
	if err != nil {
		if logger != nil {
			logger.Warn("legal advice client unavailable", "error", err)
		}
		return nil
	}
	// Advisor applies its own 30s deadline.
	return llm.NewInstrumented(client, llm.ProviderGroq, m, 0, logger)
}

// Sampling returns the oracle sampling settings from config.
func Sampling(cfg *appconfig.Config) llm.Sampling {
	s := llm.DefaultSampling()
	if cfg == nil {
		return s
	}
	s.Temperature = float32(cfg.LLMTemperature)
	s.TopP = float32(cfg.LLMTopP)
	if cfg.LLMMaxTokens > 0 {
		s.MaxTokens = int32(cfg.LLMMaxTokens)
	}
	return s
}

func providerName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return llm.ProviderOllama
	}
	return name
}

// providerConfig maps env settings onto one backend. model overrides the
// provider's own default when set.
func providerConfig(cfg *appconfig.Config, provider, model string, awsCfg *aws.Config) llm.ProviderConfig {
	pc := llm.ProviderConfig{Provider: provider, Model: strings.TrimSpace(model), AWS: awsCfg}
	switch provider {
	case llm.ProviderOllama:
		pc.BaseURL = cfg.OllamaHost
		if pc.Model == "" {
			pc.Model = cfg.OllamaModel
		}
	case llm.ProviderOpenAI:
		pc.APIKey = cfg.OpenAIAPIKey
		pc.BaseURL = cfg.OpenAIBaseURL
	case llm.ProviderGroq:
		pc.APIKey = cfg.GroqAPIKey
		pc.BaseURL = cfg.GroqBaseURL
		if pc.Model == "" {
			pc.Model = cfg.GroqModel
		}
	case llm.ProviderBedrock:
		if pc.Model == "" {
			pc.Model = cfg.BedrockModelID
		}
	case llm.ProviderGemini:
		pc.APIKey = cfg.GeminiAPIKey
	}
	return pc
}
