package embedding

import (
	"context"

	"vectorloom/internal/apperr"
)

// Mode is the processing strategy for one tenant's generation run.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeBatch  Mode = "batch"
)

// SelectMode maps a tenant's batch_embedding flag to a processing mode.
func SelectMode(batchEmbedding bool) Mode {
	if batchEmbedding {
		return ModeBatch
	}
	return ModeDirect
}

// Validate checks the mode against the provider's capabilities before any
// network call is made. Direct is always supported.
func (m Mode) Validate(p Provider) error {
	switch m {
	case ModeDirect:
		return nil
	case ModeBatch:
		if !p.SupportsBatchProcessing() {
			return apperr.Validation("model %q does not support batch embedding", p.Model())
		}
		return nil
	default:
		return apperr.Validation("unknown processing mode %q", string(m))
	}
}

// MaxItemsPerCall is a soft planning hint, not enforced.
func (m Mode) MaxItemsPerCall() int {
	if m == ModeBatch {
		return 50000
	}
	return 100
}

// Generate invokes the provider through this mode's strategy.
func (m Mode) Generate(ctx context.Context, p Provider, items []Item) ([]Result, error) {
	if err := m.Validate(p); err != nil {
		return nil, err
	}
	if m == ModeBatch {
		return p.GenerateBatchEmbeddings(ctx, items)
	}
	return p.GenerateEmbeddings(ctx, items)
}
