package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/tatianab/game-forge/internal/models"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiGenerator creates a generator for modelName. Without an API key
// the generator is still returned, but every call fails with
// ErrMissingCredential.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return &GeminiGenerator{}, nil
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.8)
	// games are full of combat; only the violence-adjacent category is relaxed
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}
	return &GeminiGenerator{
		client: client,
		model:  model,
	}, nil
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

// Generate sends instruction and returns the candidate text.
func (g *GeminiGenerator) Generate(ctx context.Context, instruction string) (models.RawModelOutput, error) {
	if g.model == nil {
		return models.RawModelOutput{}, ErrMissingCredential
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(instruction))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return models.RawModelOutput{Termination: models.TerminationSafetyBlocked}, nil
		}
		return models.RawModelOutput{}, err
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return models.RawModelOutput{Termination: models.TerminationSafetyBlocked}, nil
		}
		return models.RawModelOutput{Termination: models.TerminationOther}, nil
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	return models.RawModelOutput{
		Text:        text.String(),
		Termination: geminiTermination(cand.FinishReason),
	}, nil
}

func geminiTermination(reason genai.FinishReason) models.TerminationReason {
	switch reason {
	case genai.FinishReasonStop:
		return models.TerminationCompleted
	case genai.FinishReasonSafety:
		return models.TerminationSafetyBlocked
	default:
		return models.TerminationOther
	}
}
