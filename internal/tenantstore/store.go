// Package tenantstore reads and writes embedding rows inside a tenant's
// schema. Every query is scoped to one schema; schema names are validated
// and identifier-quoted, never interpolated raw.
package tenantstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"vectorloom/internal/apperr"
)

const (
	TableProducts  = "products"
	TableDocuments = "documents"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Entity is a read-only snapshot of a source row joined with the fields
// markdown rendering needs. Optional fields are empty, not null.
type Entity struct {
	ID                  string
	SchemaName          string
	TableName           string
	Name                string
	ProductType         string
	Description         string
	DetailedDescription string
	Price               float64
	Currency            string
	CategoryName        string
	CategoryDescription string
	URL                 string
	DocumentType        string
}

// ProcessingEmbedding is an embedding row awaiting batch reconciliation.
type ProcessingEmbedding struct {
	ID             string
	EntityID       string
	EmbeddingModel string
	BatchID        string
}

// Record is the write model for StoreEmbeddings. A nil Vector with
// StatusProcessing means a batch job is outstanding for the row.
type Record struct {
	EntityID        string
	ContentMarkdown string
	Vector          []float32
	BatchID         string
	Status          string
}

// CompletedResult carries a reconciled vector back into the tenant schema.
type CompletedResult struct {
	EntityID string
	Vector   []float32
}

var schemaNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func qualify(schema, rel string) (string, error) {
	if !schemaNameRe.MatchString(schema) {
		return "", apperr.Validation("invalid schema name %q", schema)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(rel), nil
}

func validTable(table string) error {
	if table != TableProducts && table != TableDocuments {
		return apperr.Validation("unsupported table %q", table)
	}
	return nil
}

// GetPendingEmbeddings returns source entities in schema/table that are not
// currently embedded, joined with the fields their renderer needs.
func (s *Store) GetPendingEmbeddings(ctx context.Context, schema, table string) ([]Entity, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	switch table {
	case TableProducts:
		return s.pendingProducts(ctx, schema)
	default:
		return s.pendingDocuments(ctx, schema)
	}
}

func (s *Store) pendingProducts(ctx context.Context, schema string) ([]Entity, error) {
	products, err := qualify(schema, TableProducts)
	if err != nil {
		return nil, err
	}
	categories, err := qualify(schema, "categories")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT p.id, p.name, COALESCE(p.product_type, ''), COALESCE(p.description, ''), COALESCE(p.detailed_description, ''), COALESCE(p.price, 0), COALESCE(p.currency, ''), COALESCE(c.name, ''), COALESCE(c.description, '') FROM %s p LEFT JOIN %s c ON p.category_id = c.id WHERE p.embedded = false ORDER BY p.created_at`, products, categories)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e := Entity{SchemaName: schema, TableName: TableProducts}
		if err := rows.Scan(&e.ID, &e.Name, &e.ProductType, &e.Description, &e.DetailedDescription, &e.Price, &e.Currency, &e.CategoryName, &e.CategoryDescription); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *Store) pendingDocuments(ctx context.Context, schema string) ([]Entity, error) {
	documents, err := qualify(schema, TableDocuments)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT d.id, d.name, COALESCE(d.url, ''), COALESCE(d.document_type, '') FROM %s d WHERE d.embedded = false ORDER BY d.created_at`, documents)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e := Entity{SchemaName: schema, TableName: TableDocuments}
		if err := rows.Scan(&e.ID, &e.Name, &e.URL, &e.DocumentType); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// StoreEmbeddings upserts one embedding row per record. Completed records
// additionally flip the source entity to embedded.
func (s *Store) StoreEmbeddings(ctx context.Context, schema, table, model string, recs []Record) error {
	if err := validTable(table); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	embeddings, err := qualify(schema, "embeddings")
	if err != nil {
		return err
	}
	entityTable, err := qualify(schema, table)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`INSERT INTO %s (entity_id, entity_type, content_markdown, embedding, embedding_model, status, batch_id) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (entity_id) DO UPDATE SET content_markdown = EXCLUDED.content_markdown, embedding = EXCLUDED.embedding, embedding_model = EXCLUDED.embedding_model, status = EXCLUDED.status, batch_id = EXCLUDED.batch_id, updated_at = NOW()`, embeddings)
	markEmbedded := fmt.Sprintf(`UPDATE %s SET embedded = true, updated_at = NOW() WHERE id = $1`, entityTable)

	for _, rec := range recs {
		var vec any
		if len(rec.Vector) > 0 {
			vec = pgvector.NewVector(rec.Vector)
		}
		var batchID any
		if rec.BatchID != "" {
			batchID = rec.BatchID
		}

		if _, err := tx.ExecContext(ctx, upsert, rec.EntityID, table, rec.ContentMarkdown, vec, model, rec.Status, batchID); err != nil {
			return fmt.Errorf("store embedding for %s: %w", rec.EntityID, err)
		}
		if rec.Status == StatusCompleted {
			if _, err := tx.ExecContext(ctx, markEmbedded, rec.EntityID); err != nil {
				return fmt.Errorf("mark %s embedded: %w", rec.EntityID, err)
			}
		}
	}

	return tx.Commit()
}

// GetProcessingEmbeddingsWithBatchID returns rows in schema/table that are
// waiting on an outstanding provider batch job.
func (s *Store) GetProcessingEmbeddingsWithBatchID(ctx context.Context, schema, table string) ([]ProcessingEmbedding, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	embeddings, err := qualify(schema, "embeddings")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, entity_id, embedding_model, batch_id FROM %s WHERE entity_type = $1 AND status = 'processing' AND batch_id IS NOT NULL ORDER BY created_at`, embeddings)

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProcessingEmbedding
	for rows.Next() {
		var p ProcessingEmbedding
		if err := rows.Scan(&p.ID, &p.EntityID, &p.EmbeddingModel, &p.BatchID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateCompletedEmbeddings writes reconciled vectors, preserving the stored
// content_markdown, and marks the source entities as embedded.
func (s *Store) UpdateCompletedEmbeddings(ctx context.Context, schema, table, model string, results []CompletedResult) error {
	if err := validTable(table); err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	embeddings, err := qualify(schema, "embeddings")
	if err != nil {
		return err
	}
	entityTable, err := qualify(schema, table)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	complete := fmt.Sprintf(`UPDATE %s SET embedding = $1, status = 'completed', batch_id = NULL, updated_at = NOW() WHERE entity_id = $2 AND embedding_model = $3`, embeddings)
	markEmbedded := fmt.Sprintf(`UPDATE %s SET embedded = true, updated_at = NOW() WHERE id = $1`, entityTable)

	for _, res := range results {
		if len(res.Vector) == 0 {
			return apperr.Validation("refusing to complete %s without a vector", res.EntityID)
		}
		if _, err := tx.ExecContext(ctx, complete, pgvector.NewVector(res.Vector), res.EntityID, model); err != nil {
			return fmt.Errorf("complete embedding for %s: %w", res.EntityID, err)
		}
		if _, err := tx.ExecContext(ctx, markEmbedded, res.EntityID); err != nil {
			return fmt.Errorf("mark %s embedded: %w", res.EntityID, err)
		}
	}

	return tx.Commit()
}

// ResetEmbedding reverts an entity to the un-embedded state after an upstream
// edit: vector cleared, status back to pending, entity flagged for
// regeneration. Markdown is rebuilt on the next generation run.
func (s *Store) ResetEmbedding(ctx context.Context, schema, table, entityID string) error {
	if err := validTable(table); err != nil {
		return err
	}
	embeddings, err := qualify(schema, "embeddings")
	if err != nil {
		return err
	}
	entityTable, err := qualify(schema, table)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	reset := fmt.Sprintf(`UPDATE %s SET embedding = NULL, status = 'pending', batch_id = NULL, updated_at = NOW() WHERE entity_id = $1`, embeddings)
	if _, err := tx.ExecContext(ctx, reset, entityID); err != nil {
		return fmt.Errorf("reset embedding for %s: %w", entityID, err)
	}

	unmark := fmt.Sprintf(`UPDATE %s SET embedded = false, updated_at = NOW() WHERE id = $1`, entityTable)
	res, err := tx.ExecContext(ctx, unmark, entityID)
	if err != nil {
		return fmt.Errorf("unmark %s embedded: %w", entityID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("entity %s not found in %s.%s", entityID, schema, table)
	}

	return tx.Commit()
}
