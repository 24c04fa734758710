package tenantstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorloom/features/tenant"
	"vectorloom/internal/testutils"
	"vectorloom/internal/tenantstore"
)

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()

	// 1. Provision a tenant schema
	tenantRepo := tenant.NewPostgresRepo(s.DB)
	tn := &tenant.Tenant{
		SchemaName:       "acme",
		EmbeddingModel:   "text-embedding-3-small",
		VectorDimensions: 3,
	}
	require.NoError(t, tenantRepo.Save(ctx, tn))
	require.NoError(t, tenantRepo.ProvisionSchema(ctx, tn))

	// 2. Seed a category and a product
	var categoryID string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO "acme".categories (name, description) VALUES ('Running', 'Trail gear') RETURNING id`).
		Scan(&categoryID)
	require.NoError(t, err)

	var productID string
	err = s.DB.QueryRowContext(ctx,
		`INSERT INTO "acme".products (name, product_type, description, price, currency, category_id) VALUES ('Trail Shoe', 'footwear', 'Grips wet rock', 129.90, 'EUR', $1) RETURNING id`,
		categoryID).
		Scan(&productID)
	require.NoError(t, err)

	store := tenantstore.NewStore(s.DB)

	// 3. The product is pending with its category joined in
	entities, err := store.GetPendingEmbeddings(ctx, "acme", "products")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, productID, entities[0].ID)
	assert.Equal(t, "Running", entities[0].CategoryName)

	// 4. A batch submission leaves the row processing and the product pending
	err = store.StoreEmbeddings(ctx, "acme", "products", "text-embedding-3-small", []tenantstore.Record{
		{EntityID: productID, ContentMarkdown: "# Trail Shoe\n", BatchID: "batch-1", Status: tenantstore.StatusProcessing},
	})
	require.NoError(t, err)

	entities, err = store.GetPendingEmbeddings(ctx, "acme", "products")
	require.NoError(t, err)
	assert.Len(t, entities, 1)

	processing, err := store.GetProcessingEmbeddingsWithBatchID(ctx, "acme", "products")
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, "batch-1", processing[0].BatchID)

	// 5. Reconciliation completes the row and retires the product
	err = store.UpdateCompletedEmbeddings(ctx, "acme", "products", "text-embedding-3-small", []tenantstore.CompletedResult{
		{EntityID: productID, Vector: []float32{0.1, 0.2, 0.3}},
	})
	require.NoError(t, err)

	entities, err = store.GetPendingEmbeddings(ctx, "acme", "products")
	require.NoError(t, err)
	assert.Empty(t, entities)

	var markdown, status string
	err = s.DB.QueryRowContext(ctx,
		`SELECT content_markdown, status FROM "acme".embeddings WHERE entity_id = $1`, productID).
		Scan(&markdown, &status)
	require.NoError(t, err)
	assert.Equal(t, "# Trail Shoe\n", markdown)
	assert.Equal(t, tenantstore.StatusCompleted, status)

	// 6. An upstream edit resets the row and the product becomes pending again
	require.NoError(t, store.ResetEmbedding(ctx, "acme", "products", productID))

	entities, err = store.GetPendingEmbeddings(ctx, "acme", "products")
	require.NoError(t, err)
	assert.Len(t, entities, 1)
}
