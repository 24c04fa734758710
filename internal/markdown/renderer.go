// Package markdown turns source entities into the canonical text that gets
// vectorized. Rendering must stay byte-deterministic: the output is stored
// alongside the vector and re-embedding only happens when the source changes.
package markdown

import (
	"strconv"
	"strings"

	"vectorloom/internal/apperr"
	"vectorloom/internal/tenantstore"
)

type Renderer interface {
	Render(e tenantstore.Entity) (string, error)
}

var renderers = map[string]Renderer{
	tenantstore.TableProducts:  ProductRenderer{},
	tenantstore.TableDocuments: DocumentRenderer{},
}

// ForTable resolves the renderer for a tenant table name.
func ForTable(table string) (Renderer, error) {
	r, ok := renderers[table]
	if !ok {
		return nil, apperr.Validation("no markdown renderer for table %q", table)
	}
	return r, nil
}

// Supported reports whether a table name has a renderer.
func Supported(table string) bool {
	_, ok := renderers[table]
	return ok
}

type ProductRenderer struct{}

func (ProductRenderer) Render(e tenantstore.Entity) (string, error) {
	if e.Name == "" {
		return "", apperr.Validation("product %s has no name", e.ID)
	}

	sections := []string{"# " + e.Name}

	if e.ProductType != "" {
		sections = append(sections, "Type: "+e.ProductType)
	}
	if e.Description != "" {
		sections = append(sections, e.Description)
	}
	if e.CategoryName != "" {
		category := "Category: " + e.CategoryName
		if e.CategoryDescription != "" {
			category += "\n" + e.CategoryDescription
		}
		sections = append(sections, category)
	}
	if e.Currency != "" {
		sections = append(sections, "Price: "+e.Currency+" "+strconv.FormatFloat(e.Price, 'f', 2, 64))
	}
	if e.DetailedDescription != "" {
		sections = append(sections, e.DetailedDescription)
	}

	return strings.Join(sections, "\n\n") + "\n", nil
}

type DocumentRenderer struct{}

func (DocumentRenderer) Render(e tenantstore.Entity) (string, error) {
	if e.Name == "" {
		return "", apperr.Validation("document %s has no name", e.ID)
	}

	sections := []string{"# " + e.Name}

	if e.URL != "" {
		sections = append(sections, "URL: "+e.URL)
	}
	if e.DocumentType != "" {
		sections = append(sections, "Type: "+e.DocumentType)
	}

	return strings.Join(sections, "\n\n") + "\n", nil
}
