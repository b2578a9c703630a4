package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaModel = "mistral"

type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OllamaClient talks to a local Ollama server through langchaingo.
type OllamaClient struct {
	gen   contentGenerator
	model string
}

// NewOllamaClient connects to the Ollama server at host.
func NewOllamaClient(host, model string) (*OllamaClient, error) {
	if strings.TrimSpace(model) == "" {
		model = defaultOllamaModel
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if strings.TrimSpace(host) != "" {
		opts = append(opts, ollama.WithServerURL(host))
	}
	gen, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: create ollama client: %w", err)
	}
	return &OllamaClient{gen: gen, model: model}, nil
}

func newOllamaClientWithGenerator(gen contentGenerator, model string) *OllamaClient {
	if gen == nil {
		panic("llm: ollama generator cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOllamaModel
	}
	return &OllamaClient{gen: gen, model: model}
}

func (c *OllamaClient) Complete(ctx context.Context, req Request) (Response, error) {
	var messages []llms.MessageContent
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, block))
	}
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, content))
		case RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, content))
		case RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, content))
		default:
			return Response{}, fmt.Errorf("llm: unsupported role %q", msg.Role)
		}
	}
	if len(messages) == 0 {
		return Response{}, errors.New("llm: ollama requires at least one message")
	}

	opts := []llms.CallOption{llms.WithModel(pickModel(req.Model, c.model))}
	if req.Temperature >= 0 {
		opts = append(opts, llms.WithTemperature(float64(req.Temperature)))
	}
	if req.TopP > 0 {
		opts = append(opts, llms.WithTopP(float64(req.TopP)))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(int(req.MaxTokens)))
	}

	out, err := c.gen.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return Response{}, fmt.Errorf("llm: ollama completion failed: %w", err)
	}
	if out == nil || len(out.Choices) == 0 || out.Choices[0] == nil {
		return Response{}, errors.New("llm: ollama returned no choices")
	}

	choice := out.Choices[0]
	resp := Response{
		Text:       strings.TrimSpace(choice.Content),
		StopReason: choice.StopReason,
	}
	resp.Usage = TokenUsage{
		InputTokens:  infoInt32(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: infoInt32(choice.GenerationInfo, "CompletionTokens"),
		TotalTokens:  infoInt32(choice.GenerationInfo, "TotalTokens"),
	}
	return resp, nil
}

func infoInt32(info map[string]any, key string) int32 {
	switch v := info[key].(type) {
	case int:
		return int32(v)
	case int32:
		return v
	case int64:
		return int32(v)
	case float64:
		return int32(v)
	default:
		return 0
	}
}
