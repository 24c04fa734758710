package pipeline

import (
	"context"
	"database/sql"
)

type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (r *PostgresLedger) GetPendingModificationsWithConfig(ctx context.Context) ([]PendingModification, error) {
	query := `SELECT m.id, m.schema_name, m.table_name, m.status, m.created_at, m.updated_at, t.embedding_model, t.batch_embedding, t.vector_dimensions FROM modification_requests m JOIN tenants t ON t.schema_name = m.schema_name WHERE m.status = 'pending' ORDER BY m.created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingModification
	for rows.Next() {
		var pm PendingModification
		if err := rows.Scan(&pm.Modification.ID, &pm.Modification.SchemaName, &pm.Modification.TableName, &pm.Modification.Status, &pm.Modification.CreatedAt, &pm.Modification.UpdatedAt, &pm.Config.EmbeddingModel, &pm.Config.BatchEmbedding, &pm.Config.VectorDimensions); err != nil {
			return nil, err
		}
		pm.Config.SchemaName = pm.Modification.SchemaName
		out = append(out, pm)
	}
	return out, rows.Err()
}

func (r *PostgresLedger) MarkAsReviewed(ctx context.Context, id string) error {
	query := `UPDATE modification_requests SET status = 'reviewed', updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresLedger) CreateBatchRequest(ctx context.Context, modificationID, schema, table string) (string, error) {
	var id string
	query := `INSERT INTO batch_requests (modification_request_id, schema_name, table_name) VALUES ($1, $2, $3) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, modificationID, schema, table).Scan(&id)
	return id, err
}

func (r *PostgresLedger) GetPendingBatchRequests(ctx context.Context) ([]BatchRequest, error) {
	query := `SELECT id, modification_request_id, schema_name, table_name, status, created_at FROM batch_requests WHERE status = 'pending' ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchRequest
	for rows.Next() {
		var b BatchRequest
		if err := rows.Scan(&b.ID, &b.ModificationRequestID, &b.SchemaName, &b.TableName, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresLedger) MarkBatchRequestReviewed(ctx context.Context, id string) error {
	query := `UPDATE batch_requests SET status = 'reviewed', updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// EnsurePendingModification coalesces change events: at most one pending
// modification exists per (schema, table). Returns whether a row was created.
func (r *PostgresLedger) EnsurePendingModification(ctx context.Context, schema, table string) (bool, error) {
	query := `INSERT INTO modification_requests (schema_name, table_name, status) SELECT $1, $2, 'pending' WHERE NOT EXISTS (SELECT 1 FROM modification_requests WHERE schema_name = $1 AND table_name = $2 AND status = 'pending')`
	res, err := r.db.ExecContext(ctx, query, schema, table)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
