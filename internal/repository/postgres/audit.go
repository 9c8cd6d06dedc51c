package postgres

import (
	"context"
	"encoding/json"

	"asset-pipeline/internal/audit"
)

type AuditRepository struct {
	db *DB
}

func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, event *audit.Event) error {
	var metadataJSON []byte
	if event.Metadata != nil {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return errFailedMarshalMetadata(err)
		}
		metadataJSON = raw
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, actor_type, actor_id, resource_type, resource_id,
			action, status, ip_address, user_agent, request_id, metadata, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		event.EventType,
		string(event.ActorType),
		event.ActorID,
		string(event.ResourceType),
		event.ResourceID,
		string(event.Action),
		string(event.Status),
		event.IPAddress,
		event.UserAgent,
		event.RequestID,
		metadataJSON,
		event.ErrorMessage,
		event.CreatedAt,
	)
	if err != nil {
		return errFailedInsertAudit(err)
	}

	return nil
}
