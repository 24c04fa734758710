package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"vectorloom/internal/apperr"
	"vectorloom/internal/tenantstore"
)

// Reconciler polls open batch requests and folds finished vectors back into
// tenant storage. A request is marked reviewed only once every one of its
// (batch id, model) groups reached a terminal provider state; while any
// group is still running the request stays pending and is polled again on
// the next scheduled run.
type Reconciler struct {
	ledger   Ledger
	store    EmbeddingStore
	registry ProviderRegistry
}

func NewReconciler(ledger Ledger, store EmbeddingStore, registry ProviderRegistry) *Reconciler {
	return &Reconciler{ledger: ledger, store: store, registry: registry}
}

func (r *Reconciler) Run(ctx context.Context) (*ReconciliationSummary, error) {
	reqs, err := r.ledger.GetPendingBatchRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pending batch requests: %w", err)
	}

	summary := &ReconciliationSummary{
		PendingBatchRequests: len(reqs),
		Requests:             make([]RequestResult, 0, len(reqs)),
	}
	for _, req := range reqs {
		summary.Requests = append(summary.Requests, r.process(ctx, req))
	}

	slog.InfoContext(ctx, "reconciliation run finished", "pending", summary.PendingBatchRequests)
	return summary, nil
}

type batchGroup struct {
	batchID string
	model   string
	ids     []string
}

func (r *Reconciler) process(ctx context.Context, req BatchRequest) RequestResult {
	res := RequestResult{
		BatchRequestID: req.ID,
		SchemaName:     req.SchemaName,
		TableName:      req.TableName,
	}

	recs, err := r.store.GetProcessingEmbeddingsWithBatchID(ctx, req.SchemaName, req.TableName)
	if err != nil {
		slog.ErrorContext(ctx, "reconciliation failed for batch request",
			"batch_request_id", req.ID, "schema", req.SchemaName, "table", req.TableName, "error", err)
		res.Error = err.Error()
		return res
	}

	if len(recs) == 0 {
		// Nothing outstanding, e.g. a previous partially-failed run already
		// completed every row. Close the request out.
		res.Reviewed = r.review(ctx, req, &res)
		return res
	}

	groups := groupByBatch(recs)
	res.Groups = len(groups)

	allTerminal := true
	for _, g := range groups {
		terminal := r.processGroup(ctx, req, g, &res)
		if !terminal {
			allTerminal = false
		}
	}

	if allTerminal {
		res.Reviewed = r.review(ctx, req, &res)
	}
	return res
}

// processGroup polls one (batch id, model) group and reports whether the
// provider job reached a terminal state.
func (r *Reconciler) processGroup(ctx context.Context, req BatchRequest, g batchGroup, res *RequestResult) bool {
	provider, err := r.registry.Get(g.model)
	if err != nil {
		// No registered provider will ever appear by waiting.
		slog.ErrorContext(ctx, "no provider for batch group",
			"batch_id", g.batchID, "model", g.model, "error", err)
		res.Failed++
		return true
	}

	results, done, err := provider.GetBatchEmbeddings(ctx, g.batchID, g.ids, req.SchemaName, req.TableName)
	if err != nil {
		slog.ErrorContext(ctx, "batch poll failed",
			"batch_id", g.batchID, "model", g.model, "schema", req.SchemaName, "error", err)
		res.Failed++
		// A terminally failed job (validation error) is done; a transient
		// provider error is retried on the next run.
		return apperr.IsValidation(err)
	}

	if !done {
		slog.InfoContext(ctx, "batch job still running",
			"batch_id", g.batchID, "model", g.model, "items", len(g.ids))
		res.InProgress++
		return false
	}

	completed := make([]tenantstore.CompletedResult, 0, len(results))
	for _, result := range results {
		if len(result.Embedding) == 0 {
			slog.WarnContext(ctx, "batch item returned no embedding",
				"batch_id", g.batchID, "entity_id", result.EntityID)
			continue
		}
		completed = append(completed, tenantstore.CompletedResult{
			EntityID: result.EntityID,
			Vector:   result.Embedding,
		})
	}

	if err := r.store.UpdateCompletedEmbeddings(ctx, req.SchemaName, req.TableName, g.model, completed); err != nil {
		slog.ErrorContext(ctx, "persisting batch results failed",
			"batch_id", g.batchID, "schema", req.SchemaName, "error", err)
		res.Failed++
		return false
	}

	slog.InfoContext(ctx, "batch group reconciled",
		"batch_id", g.batchID, "model", g.model, "items", len(g.ids), "updated", len(completed))
	res.Completed++
	res.Updated += len(completed)
	return true
}

func (r *Reconciler) review(ctx context.Context, req BatchRequest, res *RequestResult) bool {
	if err := r.ledger.MarkBatchRequestReviewed(ctx, req.ID); err != nil {
		slog.ErrorContext(ctx, "marking batch request reviewed failed", "batch_request_id", req.ID, "error", err)
		res.Error = err.Error()
		return false
	}
	if err := r.ledger.MarkAsReviewed(ctx, req.ModificationRequestID); err != nil {
		slog.ErrorContext(ctx, "marking modification reviewed failed",
			"modification_request_id", req.ModificationRequestID, "error", err)
		res.Error = err.Error()
		return false
	}
	return true
}

// groupByBatch splits processing rows by (batch id, model); one tenant table
// may have several concurrent batch jobs. Group order follows first
// appearance so runs stay deterministic.
func groupByBatch(recs []tenantstore.ProcessingEmbedding) []batchGroup {
	index := make(map[string]int)
	var groups []batchGroup
	for _, rec := range recs {
		key := rec.BatchID + "\x00" + rec.EmbeddingModel
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, batchGroup{batchID: rec.BatchID, model: rec.EmbeddingModel})
		}
		groups[i].ids = append(groups[i].ids, rec.EntityID)
	}
	return groups
}
