// Package worker holds the NSQ consumers.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"vectorloom/features/webhook"
	"vectorloom/internal/middleware"
)

type ModificationRecorder interface {
	EnsurePendingModification(ctx context.Context, schema, table string) (bool, error)
}

// ChangeConsumer folds entity-change events into the modification ledger.
// Repeated events for the same tenant table coalesce into one pending
// modification.
type ChangeConsumer struct {
	recorder ModificationRecorder
}

func NewChangeConsumer(recorder ModificationRecorder) *ChangeConsumer {
	return &ChangeConsumer{recorder: recorder}
}

func (h *ChangeConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var ev webhook.ChangeEvent
	if err := json.Unmarshal(m.Body, &ev); err != nil {
		// Poison pill, don't retry.
		slog.Error("poison pill: invalid change event", "error", err)
		return nil
	}

	ctx := context.Background()
	if ev.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, ev.CorrelationID)
	}

	if ev.SchemaName == "" || ev.TableName == "" {
		slog.ErrorContext(ctx, "change event missing required fields, dropping",
			"schema", ev.SchemaName, "table", ev.TableName)
		return nil
	}

	created, err := h.recorder.EnsurePendingModification(ctx, ev.SchemaName, ev.TableName)
	if err != nil {
		slog.ErrorContext(ctx, "recording modification failed",
			"schema", ev.SchemaName, "table", ev.TableName, "error", err)
		return err // retry
	}

	if created {
		slog.InfoContext(ctx, "modification request created", "schema", ev.SchemaName, "table", ev.TableName)
	} else {
		slog.InfoContext(ctx, "modification request already pending", "schema", ev.SchemaName, "table", ev.TableName)
	}
	return nil
}
