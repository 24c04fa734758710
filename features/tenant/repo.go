package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, t *Tenant) error {
	query := `INSERT INTO tenants (schema_name, embedding_model, batch_embedding, vector_dimensions) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, t.SchemaName, t.EmbeddingModel, t.BatchEmbedding, t.VectorDimensions)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, schema string) (*Tenant, error) {
	t := &Tenant{}
	query := `SELECT schema_name, embedding_model, batch_embedding, vector_dimensions, created_at, updated_at FROM tenants WHERE schema_name = $1`
	err := r.db.QueryRowContext(ctx, query, schema).Scan(&t.SchemaName, &t.EmbeddingModel, &t.BatchEmbedding, &t.VectorDimensions, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Tenant, error) {
	query := `SELECT schema_name, embedding_model, batch_embedding, vector_dimensions, created_at, updated_at FROM tenants ORDER BY schema_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.SchemaName, &t.EmbeddingModel, &t.BatchEmbedding, &t.VectorDimensions, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, t *Tenant) error {
	query := `UPDATE tenants SET embedding_model = $1, batch_embedding = $2, updated_at = NOW() WHERE schema_name = $3`
	_, err := r.db.ExecContext(ctx, query, t.EmbeddingModel, t.BatchEmbedding, t.SchemaName)
	return err
}

// ProvisionSchema creates the tenant's schema and its tables. The schema name
// is validated by the service and identifier-quoted here; the vector column
// width comes from the tenant's configured dimensionality.
func (r *PostgresRepo) ProvisionSchema(ctx context.Context, t *Tenant) error {
	schema := pq.QuoteIdentifier(t.SchemaName)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.categories (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			product_type TEXT,
			description TEXT,
			detailed_description TEXT,
			price NUMERIC(12,2),
			currency TEXT,
			category_id UUID REFERENCES %s.categories(id),
			embedded BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, schema, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.documents (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			url TEXT,
			document_type TEXT,
			embedded BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.embeddings (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			entity_id UUID NOT NULL UNIQUE,
			entity_type TEXT NOT NULL,
			content_markdown TEXT NOT NULL,
			embedding vector(%d),
			embedding_model TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			batch_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, schema, t.VectorDimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS embeddings_status_idx ON %s.embeddings (status) WHERE batch_id IS NOT NULL`, schema),
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("provision schema %s: %w", t.SchemaName, err)
		}
	}

	return tx.Commit()
}
