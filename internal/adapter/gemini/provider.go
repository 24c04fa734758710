package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/panjf2000/ants/v2"
	"google.golang.org/api/option"

	"vectorloom/internal/apperr"
	"vectorloom/internal/embedding"
)

// Provider vectorizes through the Gemini embedding API. Gemini has no batch
// job surface, so tenants configured for batch mode fail mode validation
// before any call is made.
type Provider struct {
	client *genai.Client
	model  string
	pool   *ants.Pool
}

func NewProvider(ctx context.Context, model, apiKey string, pool *ants.Pool) (*Provider, error) {
	if apiKey == "" {
		return nil, apperr.Validation("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, model: model, pool: pool}, nil
}

func (p *Provider) Model() string {
	return p.model
}

func (p *Provider) SupportsBatchProcessing() bool {
	return false
}

func (p *Provider) GenerateEmbeddings(ctx context.Context, items []embedding.Item) ([]embedding.Result, error) {
	em := p.client.EmbeddingModel(p.model)

	results := make([]embedding.Result, len(items))
	errs := make([]error, len(items))

	embedding.FanOut(p.pool, len(items), func(i int) {
		slog.DebugContext(ctx, "embedding content", "model", p.model, "length", len(items[i].Markdown))
		res, err := em.EmbedContent(ctx, genai.Text(items[i].Markdown))
		if err != nil {
			errs[i] = err
			return
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			errs[i] = fmt.Errorf("empty embedding received")
			return
		}
		results[i] = embedding.Result{
			EntityID:   items[i].EntityID,
			EntityType: items[i].EntityType,
			SchemaName: items[i].SchemaName,
			Embedding:  res.Embedding.Values,
		}
	})

	for i, err := range errs {
		if err != nil {
			return nil, apperr.Provider(fmt.Sprintf("embedding item %s failed", items[i].EntityID), err)
		}
	}
	return results, nil
}

func (p *Provider) GenerateBatchEmbeddings(ctx context.Context, items []embedding.Item) ([]embedding.Result, error) {
	return nil, apperr.Validation("model %q does not support batch embedding", p.model)
}

func (p *Provider) GetBatchEmbeddings(ctx context.Context, batchID string, itemIDs []string, schemaName, entityType string) ([]embedding.Result, bool, error) {
	return nil, false, apperr.Validation("model %q does not support batch embedding", p.model)
}

func (p *Provider) Close() error {
	return p.client.Close()
}
