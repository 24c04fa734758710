// Package pipeline owns the embedding generation and batch reconciliation
// runs. Both are stateless: an external scheduler triggers them over HTTP and
// reads back a summary. Per-tenant failures never fail a run.
package pipeline

import (
	"context"
	"time"

	"vectorloom/internal/embedding"
	"vectorloom/internal/tenantstore"
)

const (
	StatusPending  = "pending"
	StatusReviewed = "reviewed"
)

// ModificationRequest flags one tenant table whose embeddings need a refresh.
// Soft lifecycle only: pending rows are consumed by flipping to reviewed.
type ModificationRequest struct {
	ID         string    `json:"id"`
	SchemaName string    `json:"schema_name"`
	TableName  string    `json:"table_name"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TenantConfig is the embedding policy for one tenant schema.
type TenantConfig struct {
	SchemaName       string `json:"schema_name"`
	EmbeddingModel   string `json:"embedding_model"`
	BatchEmbedding   bool   `json:"batch_embedding"`
	VectorDimensions int    `json:"vector_dimensions"`
}

// PendingModification pairs a modification with its tenant's config.
type PendingModification struct {
	Modification ModificationRequest
	Config       TenantConfig
}

// BatchRequest tracks one outstanding provider batch submission.
type BatchRequest struct {
	ID                    string    `json:"id"`
	ModificationRequestID string    `json:"modification_request_id"`
	SchemaName            string    `json:"schema_name"`
	TableName             string    `json:"table_name"`
	Status                string    `json:"status"`
	CreatedAt             time.Time `json:"created_at"`
}

// Ledger is the persistence contract for modifications and batch requests.
type Ledger interface {
	GetPendingModificationsWithConfig(ctx context.Context) ([]PendingModification, error)
	MarkAsReviewed(ctx context.Context, id string) error
	CreateBatchRequest(ctx context.Context, modificationID, schema, table string) (string, error)
	GetPendingBatchRequests(ctx context.Context) ([]BatchRequest, error)
	MarkBatchRequestReviewed(ctx context.Context, id string) error
	EnsurePendingModification(ctx context.Context, schema, table string) (bool, error)
}

// EmbeddingStore is the schema-scoped persistence contract the runs need.
type EmbeddingStore interface {
	GetPendingEmbeddings(ctx context.Context, schema, table string) ([]tenantstore.Entity, error)
	StoreEmbeddings(ctx context.Context, schema, table, model string, recs []tenantstore.Record) error
	GetProcessingEmbeddingsWithBatchID(ctx context.Context, schema, table string) ([]tenantstore.ProcessingEmbedding, error)
	UpdateCompletedEmbeddings(ctx context.Context, schema, table, model string, results []tenantstore.CompletedResult) error
}

// ProviderRegistry resolves a model identifier to its embedding provider.
type ProviderRegistry interface {
	Get(model string) (embedding.Provider, error)
}

// GenerationSummary is returned to the scheduler after a generation run.
type GenerationSummary struct {
	PendingModifications   int            `json:"pending_modifications"`
	ProcessedModifications int            `json:"processed_modifications"`
	MarkdownGenerated      int            `json:"markdown_generated"`
	Tenants                []TenantResult `json:"tenants"`
}

// TenantResult is the outcome of one tenant/table pairing in a generation
// run. Error is set when the pairing was aborted; the run itself continues.
type TenantResult struct {
	SchemaName        string `json:"schema_name"`
	TableName         string `json:"table_name"`
	Mode              string `json:"mode,omitempty"`
	Entities          int    `json:"entities"`
	MarkdownGenerated int    `json:"markdown_generated"`
	Stored            int    `json:"stored"`
	BatchID           string `json:"batch_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ReconciliationSummary is returned to the scheduler after a reconciliation
// run.
type ReconciliationSummary struct {
	PendingBatchRequests int             `json:"pending_batch_requests"`
	Requests             []RequestResult `json:"requests"`
}

// RequestResult is the outcome of polling one batch request's job groups.
type RequestResult struct {
	BatchRequestID string `json:"batch_request_id"`
	SchemaName     string `json:"schema_name"`
	TableName      string `json:"table_name"`
	Groups         int    `json:"groups"`
	Completed      int    `json:"completed"`
	InProgress     int    `json:"in_progress"`
	Failed         int    `json:"failed"`
	Updated        int    `json:"updated"`
	Reviewed       bool   `json:"reviewed"`
	Error          string `json:"error,omitempty"`
}
