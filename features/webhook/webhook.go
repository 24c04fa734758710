// Package webhook ingests upstream entity-change notifications. A change
// resets the entity's embedding row and publishes an event; the change
// consumer coalesces events into pending modification requests that the
// generation run picks up.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"vectorloom/internal/apperr"
	"vectorloom/internal/markdown"
	"vectorloom/internal/middleware"

	"vectorloom/features/tenant"
)

const TopicEntityChanged = "entity.changed"

type ChangeEvent struct {
	SchemaName    string `json:"schema_name"`
	TableName     string `json:"table_name"`
	EntityID      string `json:"entity_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type TenantLookup interface {
	Get(ctx context.Context, schema string) (*tenant.Tenant, error)
}

type EmbeddingResetter interface {
	ResetEmbedding(ctx context.Context, schema, table, entityID string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	tenants  TenantLookup
	resetter EmbeddingResetter
	pub      EventPublisher
}

func NewService(tenants TenantLookup, resetter EmbeddingResetter, pub EventPublisher) *Service {
	return &Service{tenants: tenants, resetter: resetter, pub: pub}
}

// Notify handles one upstream change: revert the embedding row to pending and
// queue a change event for the modification ledger.
func (s *Service) Notify(ctx context.Context, ev ChangeEvent) error {
	if !markdown.Supported(ev.TableName) {
		return apperr.Validation("unsupported table %q", ev.TableName)
	}
	if ev.EntityID == "" {
		return apperr.Validation("entity id is required")
	}

	if _, err := s.tenants.Get(ctx, ev.SchemaName); err != nil {
		return err
	}

	if err := s.resetter.ResetEmbedding(ctx, ev.SchemaName, ev.TableName, ev.EntityID); err != nil {
		return err
	}

	ev.CorrelationID = middleware.GetCorrelationID(ctx)
	payload, _ := json.Marshal(ev)
	if err := s.pub.Publish(TopicEntityChanged, payload); err != nil {
		return fmt.Errorf("publish %s event: %w", TopicEntityChanged, err)
	}

	slog.InfoContext(ctx, "published entity change event",
		"schema", ev.SchemaName, "table", ev.TableName, "entity_id", ev.EntityID)
	return nil
}
