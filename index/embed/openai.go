package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the remote embedding client.
type OpenAIConfig struct {
	// BaseURL points at any OpenAI-compatible embeddings endpoint.
	// Empty means the OpenAI default.
	BaseURL string

	// APIKey authenticates the client. May be empty for unauthenticated
	// local endpoints.
	APIKey string

	// Model is the embedding model name. Default: text-embedding-3-small.
	Model string

	// Dimensions is the vector size of the chosen model.
	// Default: 1536 (text-embedding-3-small).
	Dimensions int
}

// OpenAI embeds text through an OpenAI-compatible embeddings API.
type OpenAI struct {
	client     openai.Client
	model      string
	dimensions int
}

// NewOpenAI creates the remote embedder.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	var opts []option.RequestOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = 1536
	}
	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: dims,
	}
}

// Embed requests one embedding from the remote service.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings api: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings api returned no data")
	}
	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (o *OpenAI) Dimensions() int {
	return o.dimensions
}
