// Package audit captures before/after state around mutations of audited entities
// and appends one audit_logs row per logical operation.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dineflow/internal/access"
	"dineflow/internal/domain"
	"dineflow/internal/gateway"
	"dineflow/internal/repository"
	"dineflow/internal/tenant"
)

// Writer persists audit entries
type Writer interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
}

// Recorder builds audit entries and persists them after the business transaction
// commits. Persistence failures are logged, never returned.
type Recorder struct {
	writer Writer
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(writer Writer, logger *zap.Logger) *Recorder {
	return &Recorder{writer: writer, logger: logger, now: time.Now}
}

// Interceptor snapshots pre-images for update/delete/upsert, runs the call, and
// schedules the entry. It must sit after Scope so pre-image reads are scoped.
func (r *Recorder) Interceptor() gateway.Interceptor {
	return func(next gateway.Handler) gateway.Handler {
		return func(ctx context.Context, store repository.Store, call *gateway.Call) (*gateway.Result, error) {
			if !call.Entity.Audited() || !mutating(call.Op) {
				return next(ctx, store, call)
			}

			var before []repository.Record
			switch call.Op {
			case access.OpUpdate, access.OpDelete:
				recs, err := store.Find(ctx, call.Entity, repository.Query{Where: call.Query.Where})
				if err != nil {
					return nil, err
				}
				before = recs
			case access.OpUpsert:
				where := make([]repository.Cond, 0, len(call.Conflict))
				for _, c := range call.Conflict {
					where = append(where, repository.Eq(c, call.Data[c]))
				}
				recs, err := store.Find(ctx, call.Entity, repository.Query{Where: where, Limit: 1})
				if err != nil {
					return nil, err
				}
				before = recs
			}

			res, err := next(ctx, store, call)
			if err != nil {
				return nil, err
			}

			entry, ok := r.build(ctx, call, before, res)
			if ok {
				gateway.AfterCommit(ctx, func(ctx context.Context) {
					r.persist(ctx, entry)
				})
			}
			return res, nil
		}
	}
}

// RecordEvent appends an entry for an action that is not a row mutation (EXPORT,
// LOGIN). Inside a gateway transaction it waits for commit.
func (r *Recorder) RecordEvent(ctx context.Context, action domain.AuditAction, e domain.Entity, recordID string, metadata map[string]any) {
	entry := r.base(ctx, action, e)
	if recordID != "" {
		entry.RecordID = &recordID
	}
	if metadata != nil {
		entry.Metadata = snapshot(metadata)
	}
	gateway.AfterCommit(ctx, func(ctx context.Context) {
		r.persist(ctx, entry)
	})
}

func (r *Recorder) build(ctx context.Context, call *gateway.Call, before []repository.Record, res *gateway.Result) (domain.AuditLogEntry, bool) {
	var action domain.AuditAction
	switch call.Op {
	case access.OpCreate:
		action = domain.AuditCreate
	case access.OpUpsert:
		action = domain.AuditUpdate
		if len(before) == 0 {
			action = domain.AuditCreate
		}
		if len(res.Records) == 0 {
			return domain.AuditLogEntry{}, false
		}
	case access.OpUpdate:
		action = domain.AuditUpdate
		if len(res.Records) == 0 {
			return domain.AuditLogEntry{}, false
		}
	case access.OpDelete:
		action = domain.AuditDelete
		if res.Affected == 0 {
			return domain.AuditLogEntry{}, false
		}
	}

	entry := r.base(ctx, action, call.Entity)

	switch len(before) {
	case 0:
	case 1:
		entry.BeforeState = snapshot(before[0])
	default:
		rows := make([]any, len(before))
		for i, rec := range before {
			rows[i] = map[string]any(rec)
		}
		entry.BeforeState = snapshot(map[string]any{"count": len(before), "records": rows})
	}

	if call.Op != access.OpDelete {
		if len(res.Records) == 1 {
			entry.AfterState = snapshot(res.Records[0])
		} else {
			entry.AfterState = snapshot(map[string]any{"count": len(res.Records)})
		}
	} else if res.Affected > 1 {
		entry.Metadata = snapshot(map[string]any{"count": res.Affected})
	}

	var id any
	switch {
	case len(res.Records) == 1:
		id = res.Records[0]["id"]
	case len(before) == 1:
		id = before[0]["id"]
	}
	if id != nil {
		recordID := repository.AsString(id)
		entry.RecordID = &recordID
		if call.Entity == domain.EntityOrder {
			entry.OrderID = &recordID
		}
	}
	return entry, true
}

func (r *Recorder) base(ctx context.Context, action domain.AuditAction, e domain.Entity) domain.AuditLogEntry {
	entry := domain.AuditLogEntry{
		ID:        uuid.NewString(),
		Action:    action,
		TableName: e.Table(),
		CreatedAt: r.now().UTC(),
	}
	if tc, ok := tenant.FromContext(ctx); ok {
		if tc.UserID != "" {
			uid := tc.UserID
			entry.UserID = &uid
		}
		if tc.RestaurantID != "" {
			rid := tc.RestaurantID
			entry.RestaurantID = &rid
		}
	}
	if meta, ok := RequestMetaFrom(ctx); ok {
		if meta.IPAddress != "" {
			ip := meta.IPAddress
			entry.IPAddress = &ip
		}
		if meta.UserAgent != "" {
			ua := meta.UserAgent
			entry.UserAgent = &ua
		}
	}
	return entry
}

func (r *Recorder) persist(ctx context.Context, entry domain.AuditLogEntry) {
	if entry.Metadata == nil {
		entry.Metadata = json.RawMessage(`{}`)
	}
	if err := r.writer.Append(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("Failed to persist audit log",
			zap.String("alert", "audit_persistence_failure"),
			zap.String("action", string(entry.Action)),
			zap.String("table", entry.TableName),
			zap.Stringp("record_id", entry.RecordID),
			zap.Error(err),
		)
	}
}

func mutating(op access.Operation) bool {
	switch op {
	case access.OpCreate, access.OpUpdate, access.OpUpsert, access.OpDelete:
		return true
	}
	return false
}
