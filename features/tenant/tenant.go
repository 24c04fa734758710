// Package tenant manages per-tenant embedding configuration and provisions
// each tenant's isolated schema.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"

	"vectorloom/internal/apperr"
)

type Tenant struct {
	SchemaName       string    `json:"schema_name"`
	EmbeddingModel   string    `json:"embedding_model"`
	BatchEmbedding   bool      `json:"batch_embedding"`
	VectorDimensions int       `json:"vector_dimensions"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, t *Tenant) error
	ProvisionSchema(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, schema string) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	Update(ctx context.Context, t *Tenant) error
}

var schemaNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validate(t *Tenant) error {
	if !schemaNameRe.MatchString(t.SchemaName) {
		return apperr.Validation("invalid schema name %q", t.SchemaName)
	}
	if t.EmbeddingModel == "" {
		return apperr.Validation("embedding model is required")
	}
	if t.VectorDimensions < 1 || t.VectorDimensions > 16000 {
		return apperr.Validation("vector dimensions must be between 1 and 16000")
	}
	return nil
}

// Create registers the tenant and provisions its schema.
func (s *Service) Create(ctx context.Context, t *Tenant) error {
	if err := validate(t); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, t); err != nil {
		return err
	}
	return s.repo.ProvisionSchema(ctx, t)
}

func (s *Service) Get(ctx context.Context, schema string) (*Tenant, error) {
	t, err := s.repo.Get(ctx, schema)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("tenant %q not found", schema)
	}
	return t, err
}

func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	return s.repo.List(ctx)
}

// Update changes the embedding policy. Vector dimensionality is fixed at
// provisioning time, so dimension changes are rejected.
func (s *Service) Update(ctx context.Context, t *Tenant) error {
	if err := validate(t); err != nil {
		return err
	}
	existing, err := s.Get(ctx, t.SchemaName)
	if err != nil {
		return err
	}
	if existing.VectorDimensions != t.VectorDimensions {
		return apperr.Validation("vector dimensions cannot change after provisioning")
	}
	return s.repo.Update(ctx, t)
}
