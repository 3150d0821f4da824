package engine

import (
	"context"

	"github.com/sashabaranov/go-openai"
	"github.com/tatianab/game-forge/internal/models"
)

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator. baseURL may be empty for the
// default endpoint. Without an API key every call fails with
// ErrMissingCredential.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	if apiKey == "" {
		return &OpenAIGenerator{model: model}
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Generate sends instruction as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, instruction string) (models.RawModelOutput, error) {
	if g.client == nil {
		return models.RawModelOutput{}, ErrMissingCredential
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: instruction},
		},
	})
	if err != nil {
		return models.RawModelOutput{}, err
	}
	if len(resp.Choices) == 0 {
		return models.RawModelOutput{Termination: models.TerminationOther}, nil
	}

	choice := resp.Choices[0]
	return models.RawModelOutput{
		Text:        choice.Message.Content,
		Termination: openAITermination(choice.FinishReason),
	}, nil
}

func openAITermination(reason openai.FinishReason) models.TerminationReason {
	switch reason {
	case openai.FinishReasonStop:
		return models.TerminationCompleted
	case openai.FinishReasonContentFilter:
		return models.TerminationSafetyBlocked
	default:
		return models.TerminationOther
	}
}
