package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"vectorloom/internal/embedding"
	"vectorloom/internal/markdown"
	"vectorloom/internal/tenantstore"
)

// Orchestrator turns pending modifications into embeddings: render markdown,
// vectorize through the tenant's configured mode, persist, mark reviewed.
type Orchestrator struct {
	ledger   Ledger
	store    EmbeddingStore
	registry ProviderRegistry
}

func NewOrchestrator(ledger Ledger, store EmbeddingStore, registry ProviderRegistry) *Orchestrator {
	return &Orchestrator{ledger: ledger, store: store, registry: registry}
}

// Run processes every pending modification. Failures inside one tenant/table
// pairing are logged and contribute an error result; the loop continues.
// Only a failure before the loop (the ledger fetch) fails the run.
func (o *Orchestrator) Run(ctx context.Context) (*GenerationSummary, error) {
	mods, err := o.ledger.GetPendingModificationsWithConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pending modifications: %w", err)
	}

	summary := &GenerationSummary{
		PendingModifications: len(mods),
		Tenants:              make([]TenantResult, 0, len(mods)),
	}

	for _, pm := range mods {
		res := o.process(ctx, pm)
		if res.Error == "" {
			summary.ProcessedModifications++
		}
		summary.MarkdownGenerated += res.MarkdownGenerated
		summary.Tenants = append(summary.Tenants, res)
	}

	slog.InfoContext(ctx, "generation run finished",
		"pending", summary.PendingModifications,
		"processed", summary.ProcessedModifications,
		"markdown_generated", summary.MarkdownGenerated)
	return summary, nil
}

func (o *Orchestrator) process(ctx context.Context, pm PendingModification) TenantResult {
	schema := pm.Modification.SchemaName
	table := pm.Modification.TableName
	res := TenantResult{SchemaName: schema, TableName: table}

	fail := func(stage string, err error) TenantResult {
		slog.ErrorContext(ctx, "generation failed for tenant table",
			"schema", schema, "table", table, "stage", stage, "error", err)
		res.Error = err.Error()
		return res
	}

	renderer, err := markdown.ForTable(table)
	if err != nil {
		return fail("renderer", err)
	}

	entities, err := o.store.GetPendingEmbeddings(ctx, schema, table)
	if err != nil {
		return fail("fetch", err)
	}
	res.Entities = len(entities)

	items := make([]embedding.Item, 0, len(entities))
	markdownByEntity := make(map[string]string, len(entities))
	for _, e := range entities {
		text, err := renderer.Render(e)
		if err != nil {
			slog.WarnContext(ctx, "skipping entity, markdown rendering failed",
				"schema", schema, "table", table, "entity_id", e.ID, "error", err)
			continue
		}
		items = append(items, embedding.Item{
			EntityID:   e.ID,
			EntityType: table,
			SchemaName: schema,
			Markdown:   text,
		})
		markdownByEntity[e.ID] = text
	}
	res.MarkdownGenerated = len(items)

	if len(items) == 0 {
		if err := o.ledger.MarkAsReviewed(ctx, pm.Modification.ID); err != nil {
			return fail("review", err)
		}
		return res
	}

	provider, err := o.registry.Get(pm.Config.EmbeddingModel)
	if err != nil {
		return fail("provider", err)
	}

	mode := embedding.SelectMode(pm.Config.BatchEmbedding)
	if err := mode.Validate(provider); err != nil {
		return fail("mode", err)
	}
	res.Mode = string(mode)

	if max := mode.MaxItemsPerCall(); len(items) > max {
		slog.WarnContext(ctx, "item count exceeds mode planning hint",
			"schema", schema, "table", table, "items", len(items), "hint", max)
	}

	results, err := mode.Generate(ctx, provider, items)
	if err != nil {
		return fail("generate", err)
	}

	recs := make([]tenantstore.Record, 0, len(results))
	for _, r := range results {
		rec := tenantstore.Record{
			EntityID:        r.EntityID,
			ContentMarkdown: markdownByEntity[r.EntityID],
			Vector:          r.Embedding,
			BatchID:         r.BatchID,
			Status:          tenantstore.StatusCompleted,
		}
		if mode == embedding.ModeBatch {
			rec.Status = tenantstore.StatusProcessing
		}
		recs = append(recs, rec)
	}
	if err := o.store.StoreEmbeddings(ctx, schema, table, pm.Config.EmbeddingModel, recs); err != nil {
		return fail("store", err)
	}
	res.Stored = len(recs)

	if err := o.ledger.MarkAsReviewed(ctx, pm.Modification.ID); err != nil {
		return fail("review", err)
	}

	if mode == embedding.ModeBatch {
		if _, err := o.ledger.CreateBatchRequest(ctx, pm.Modification.ID, schema, table); err != nil {
			return fail("batch request", err)
		}
		if len(results) > 0 {
			res.BatchID = results[0].BatchID
		}
	}

	slog.InfoContext(ctx, "tenant table processed",
		"schema", schema, "table", table, "mode", res.Mode, "stored", res.Stored, "batch_id", res.BatchID)
	return res
}
