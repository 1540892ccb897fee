package repository

import (
	"context"
	"fmt"

	"dineflow/internal/domain"
)

// AuditLogRepository append-only writer for audit_logs. Entries are written outside
// the business transaction (after commit), straight to the store.
type AuditLogRepository struct {
	store Store
}

func NewAuditLogRepository(store Store) *AuditLogRepository {
	return &AuditLogRepository{store: store}
}

// Append inserts entry. audit_logs has no update or delete path.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	rec := Record{
		"id":            entry.ID,
		"user_id":       entry.UserID,
		"restaurant_id": entry.RestaurantID,
		"order_id":      entry.OrderID,
		"action":        string(entry.Action),
		"table_name":    entry.TableName,
		"record_id":     entry.RecordID,
		"before_state":  entry.BeforeState,
		"after_state":   entry.AfterState,
		"ip_address":    entry.IPAddress,
		"user_agent":    entry.UserAgent,
		"metadata":      entry.Metadata,
		"created_at":    entry.CreatedAt,
	}
	if _, err := r.store.Insert(ctx, domain.EntityAuditLog, rec); err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}
