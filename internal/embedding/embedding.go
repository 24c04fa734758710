// Package embedding defines the provider contract for vectorizing rendered
// entity text, either synchronously or through a provider-side batch job.
package embedding

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"

	"vectorloom/internal/apperr"
)

// Item is one rendered entity queued for vectorization.
type Item struct {
	EntityID   string
	EntityType string
	SchemaName string
	Markdown   string
}

// Result is the outcome of vectorizing one item. Embedding is nil while a
// batch job is outstanding or when the provider failed the item's line;
// BatchID is set exactly when a batch job is outstanding.
type Result struct {
	EntityID   string
	EntityType string
	SchemaName string
	Embedding  []float32
	BatchID    string
}

// Provider vectorizes items for one embedding model.
//
// GenerateBatchEmbeddings submits a provider-side job and returns placeholder
// results immediately. GetBatchEmbeddings polls it: done=false means the job
// is still running and every result is a placeholder; a terminally failed job
// surfaces as a ValidationError; done=true returns one result per requested
// id, nil Embedding for ids the provider errored or omitted.
type Provider interface {
	Model() string
	SupportsBatchProcessing() bool
	GenerateEmbeddings(ctx context.Context, items []Item) ([]Result, error)
	GenerateBatchEmbeddings(ctx context.Context, items []Item) ([]Result, error)
	GetBatchEmbeddings(ctx context.Context, batchID string, itemIDs []string, schemaName, entityType string) ([]Result, bool, error)
}

// Registry maps model identifiers to their providers.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Model()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(model string) (Provider, error) {
	p, ok := r.providers[model]
	if !ok {
		return nil, apperr.Validation("no embedding provider registered for model %q", model)
	}
	return p, nil
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Model()] = p
}

// FanOut runs fn(0..n-1) on the pool and waits for all of them. Submission
// failures (released or overloaded pool) fall back to running inline so a
// call never loses items.
func FanOut(pool *ants.Pool, n int, fn func(i int)) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(i)
		}
		if pool == nil || pool.Submit(task) != nil {
			go task()
		}
	}
	wg.Wait()
}
