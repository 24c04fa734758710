package pipeline_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"vectorloom/features/pipeline"
	"vectorloom/internal/embedding"
	"vectorloom/internal/tenantstore"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetPendingModificationsWithConfig(ctx context.Context) ([]pipeline.PendingModification, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pipeline.PendingModification), args.Error(1)
}

func (m *MockLedger) MarkAsReviewed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLedger) CreateBatchRequest(ctx context.Context, modificationID, schema, table string) (string, error) {
	args := m.Called(ctx, modificationID, schema, table)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) GetPendingBatchRequests(ctx context.Context) ([]pipeline.BatchRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pipeline.BatchRequest), args.Error(1)
}

func (m *MockLedger) MarkBatchRequestReviewed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLedger) EnsurePendingModification(ctx context.Context, schema, table string) (bool, error) {
	args := m.Called(ctx, schema, table)
	return args.Bool(0), args.Error(1)
}

type MockEmbeddingStore struct {
	mock.Mock
}

func (m *MockEmbeddingStore) GetPendingEmbeddings(ctx context.Context, schema, table string) ([]tenantstore.Entity, error) {
	args := m.Called(ctx, schema, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]tenantstore.Entity), args.Error(1)
}

func (m *MockEmbeddingStore) StoreEmbeddings(ctx context.Context, schema, table, model string, recs []tenantstore.Record) error {
	return m.Called(ctx, schema, table, model, recs).Error(0)
}

func (m *MockEmbeddingStore) GetProcessingEmbeddingsWithBatchID(ctx context.Context, schema, table string) ([]tenantstore.ProcessingEmbedding, error) {
	args := m.Called(ctx, schema, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]tenantstore.ProcessingEmbedding), args.Error(1)
}

func (m *MockEmbeddingStore) UpdateCompletedEmbeddings(ctx context.Context, schema, table, model string, results []tenantstore.CompletedResult) error {
	return m.Called(ctx, schema, table, model, results).Error(0)
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Get(model string) (embedding.Provider, error) {
	args := m.Called(model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(embedding.Provider), args.Error(1)
}

type MockProvider struct {
	mock.Mock
	model         string
	supportsBatch bool
}

func (m *MockProvider) Model() string { return m.model }

func (m *MockProvider) SupportsBatchProcessing() bool { return m.supportsBatch }

func (m *MockProvider) GenerateEmbeddings(ctx context.Context, items []embedding.Item) ([]embedding.Result, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]embedding.Result), args.Error(1)
}

func (m *MockProvider) GenerateBatchEmbeddings(ctx context.Context, items []embedding.Item) ([]embedding.Result, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]embedding.Result), args.Error(1)
}

func (m *MockProvider) GetBatchEmbeddings(ctx context.Context, batchID string, itemIDs []string, schemaName, entityType string) ([]embedding.Result, bool, error) {
	args := m.Called(ctx, batchID, itemIDs, schemaName, entityType)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]embedding.Result), args.Bool(1), args.Error(2)
}
