package markdown_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vectorloom/internal/apperr"
	"vectorloom/internal/markdown"
	"vectorloom/internal/tenantstore"
)

func TestForTable(t *testing.T) {
	r, err := markdown.ForTable("products")
	assert.NoError(t, err)
	assert.NotNil(t, r)

	r, err = markdown.ForTable("documents")
	assert.NoError(t, err)
	assert.NotNil(t, r)

	_, err = markdown.ForTable("orders")
	assert.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	assert.True(t, markdown.Supported("products"))
	assert.False(t, markdown.Supported("orders"))
}

func TestProductRenderer_AllSections(t *testing.T) {
	e := tenantstore.Entity{
		ID:                  "p1",
		Name:                "Trail Shoe",
		ProductType:         "footwear",
		Description:         "A lightweight trail running shoe.",
		DetailedDescription: "Vibram outsole, 8mm drop.",
		Price:               129.9,
		Currency:            "EUR",
		CategoryName:        "Running",
		CategoryDescription: "Road and trail running gear.",
	}

	out, err := markdown.ProductRenderer{}.Render(e)
	assert.NoError(t, err)
	assert.Equal(t, "# Trail Shoe\n\n"+
		"Type: footwear\n\n"+
		"A lightweight trail running shoe.\n\n"+
		"Category: Running\nRoad and trail running gear.\n\n"+
		"Price: EUR 129.90\n\n"+
		"Vibram outsole, 8mm drop.\n", out)
}

func TestProductRenderer_OmitsAbsentSections(t *testing.T) {
	e := tenantstore.Entity{ID: "p2", Name: "Gift Card"}

	out, err := markdown.ProductRenderer{}.Render(e)
	assert.NoError(t, err)
	assert.Equal(t, "# Gift Card\n", out)
	assert.NotContains(t, out, "Type:")
	assert.NotContains(t, out, "Category:")
	assert.NotContains(t, out, "Price:")
}

func TestProductRenderer_CategoryWithoutDescription(t *testing.T) {
	e := tenantstore.Entity{ID: "p3", Name: "Socks", CategoryName: "Apparel"}

	out, err := markdown.ProductRenderer{}.Render(e)
	assert.NoError(t, err)
	assert.Equal(t, "# Socks\n\nCategory: Apparel\n", out)
}

func TestProductRenderer_Deterministic(t *testing.T) {
	e := tenantstore.Entity{
		ID: "p1", Name: "Trail Shoe", ProductType: "footwear",
		Price: 10, Currency: "USD",
	}
	first, err := markdown.ProductRenderer{}.Render(e)
	assert.NoError(t, err)
	second, err := markdown.ProductRenderer{}.Render(e)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProductRenderer_MissingName(t *testing.T) {
	_, err := markdown.ProductRenderer{}.Render(tenantstore.Entity{ID: "p9"})
	assert.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestDocumentRenderer(t *testing.T) {
	e := tenantstore.Entity{
		ID:           "d1",
		Name:         "Returns Policy",
		URL:          "https://example.com/returns",
		DocumentType: "policy",
	}

	out, err := markdown.DocumentRenderer{}.Render(e)
	assert.NoError(t, err)
	assert.Equal(t, "# Returns Policy\n\nURL: https://example.com/returns\n\nType: policy\n", out)
}

func TestDocumentRenderer_OmitsAbsentSections(t *testing.T) {
	out, err := markdown.DocumentRenderer{}.Render(tenantstore.Entity{ID: "d2", Name: "FAQ"})
	assert.NoError(t, err)
	assert.Equal(t, "# FAQ\n", out)
}
