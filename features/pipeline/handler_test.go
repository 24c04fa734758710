package pipeline_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vectorloom/features/pipeline"
)

func TestHandler_RunGeneration(t *testing.T) {
	ledger := new(MockLedger)
	ledger.On("GetPendingModificationsWithConfig", mock.Anything).
		Return([]pipeline.PendingModification{}, nil)

	handler := pipeline.NewHandler(
		pipeline.NewOrchestrator(ledger, new(MockEmbeddingStore), new(MockRegistry)),
		pipeline.NewReconciler(ledger, new(MockEmbeddingStore), new(MockRegistry)),
	)

	req := httptest.NewRequest(http.MethodPost, "/pipeline/generation/run", nil)
	rec := httptest.NewRecorder()

	handler.RunGeneration(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data pipeline.GenerationSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Data.PendingModifications)
}

func TestHandler_RunGeneration_LedgerDown(t *testing.T) {
	ledger := new(MockLedger)
	ledger.On("GetPendingModificationsWithConfig", mock.Anything).
		Return(nil, errors.New("connection refused"))

	handler := pipeline.NewHandler(
		pipeline.NewOrchestrator(ledger, new(MockEmbeddingStore), new(MockRegistry)),
		pipeline.NewReconciler(ledger, new(MockEmbeddingStore), new(MockRegistry)),
	)

	req := httptest.NewRequest(http.MethodPost, "/pipeline/generation/run", nil)
	rec := httptest.NewRecorder()

	handler.RunGeneration(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestHandler_RunReconciliation(t *testing.T) {
	ledger := new(MockLedger)
	ledger.On("GetPendingBatchRequests", mock.Anything).
		Return([]pipeline.BatchRequest{}, nil)

	handler := pipeline.NewHandler(
		pipeline.NewOrchestrator(ledger, new(MockEmbeddingStore), new(MockRegistry)),
		pipeline.NewReconciler(ledger, new(MockEmbeddingStore), new(MockRegistry)),
	)

	req := httptest.NewRequest(http.MethodPost, "/pipeline/reconciliation/run", nil)
	rec := httptest.NewRecorder()

	handler.RunReconciliation(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data pipeline.ReconciliationSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Data.PendingBatchRequests)
}
