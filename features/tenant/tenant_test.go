package tenant_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vectorloom/features/tenant"
	"vectorloom/internal/apperr"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, t *tenant.Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockRepository) ProvisionSchema(ctx context.Context, t *tenant.Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockRepository) Get(ctx context.Context, schema string) (*tenant.Tenant, error) {
	args := m.Called(ctx, schema)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Tenant), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context) ([]tenant.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]tenant.Tenant), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func validTenant() *tenant.Tenant {
	return &tenant.Tenant{
		SchemaName:       "tenant_a",
		EmbeddingModel:   "text-embedding-3-small",
		BatchEmbedding:   true,
		VectorDimensions: 1536,
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	svc := tenant.NewService(repo)

	in := validTenant()
	repo.On("Save", ctx, in).Return(nil)
	repo.On("ProvisionSchema", ctx, in).Return(nil)

	require.NoError(t, svc.Create(ctx, in))
	repo.AssertExpectations(t)
}

func TestService_Create_Validation(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	svc := tenant.NewService(repo)

	cases := []struct {
		name   string
		mutate func(*tenant.Tenant)
	}{
		{"uppercase schema", func(in *tenant.Tenant) { in.SchemaName = "Tenant_A" }},
		{"quoted schema", func(in *tenant.Tenant) { in.SchemaName = `tenant";--` }},
		{"empty model", func(in *tenant.Tenant) { in.EmbeddingModel = "" }},
		{"zero dimensions", func(in *tenant.Tenant) { in.VectorDimensions = 0 }},
		{"oversized dimensions", func(in *tenant.Tenant) { in.VectorDimensions = 20000 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validTenant()
			tc.mutate(in)
			err := svc.Create(ctx, in)
			assert.True(t, apperr.IsValidation(err))
		})
	}

	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestService_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	svc := tenant.NewService(repo)

	repo.On("Get", ctx, "missing").Return(nil, sql.ErrNoRows)

	_, err := svc.Get(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_Update_RejectsDimensionChange(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	svc := tenant.NewService(repo)

	existing := validTenant()
	existing.CreatedAt = time.Now()
	repo.On("Get", ctx, "tenant_a").Return(existing, nil)

	in := validTenant()
	in.VectorDimensions = 3072

	err := svc.Update(ctx, in)
	assert.True(t, apperr.IsValidation(err))
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	svc := tenant.NewService(repo)

	existing := validTenant()
	repo.On("Get", ctx, "tenant_a").Return(existing, nil)

	in := validTenant()
	in.EmbeddingModel = "text-embedding-3-large"
	in.BatchEmbedding = false
	repo.On("Update", ctx, in).Return(nil)

	require.NoError(t, svc.Update(ctx, in))
	repo.AssertExpectations(t)
}
