package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one row of the identity resolution audit trail. Details hold
// event payload fields; raw PII never lands here.
type AuditEntry struct {
	ID          string
	EventType   string
	CanonicalID string
	PerformedBy string
	Details     map[string]any
	CreatedAt   time.Time
}

// AuditLogRepository persists identity lifecycle events for later review.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *AuditEntry) error
	ListByIdentity(ctx context.Context, canonicalID string, limit int) ([]AuditEntry, error)
}

type auditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository instantiates the repository.
func NewAuditLogRepository(pool *pgxpool.Pool) AuditLogRepository {
	return &auditLogRepository{pool: pool}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *AuditEntry) error {
	const query = `
        INSERT INTO identity_resolution_log (event_type, canonical_id, performed_by, details)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`

	details, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, query,
		entry.EventType,
		entry.CanonicalID,
		entry.PerformedBy,
		details,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *auditLogRepository) ListByIdentity(ctx context.Context, canonicalID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, event_type, canonical_id, performed_by, details, created_at
        FROM identity_resolution_log
        WHERE canonical_id=$1
        ORDER BY created_at DESC
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, canonicalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var details []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.EventType,
			&entry.CanonicalID,
			&entry.PerformedBy,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, err
			}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
