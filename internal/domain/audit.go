package domain

import (
	"encoding/json"
	"time"
)

// AuditAction audit trail action
type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
	AuditLogin  AuditAction = "LOGIN"
	AuditLogout AuditAction = "LOGOUT"
	AuditExport AuditAction = "EXPORT"
	AuditImport AuditAction = "IMPORT"
)

// AuditLogEntry append-only audit row (audit_logs table)
type AuditLogEntry struct {
	ID           string
	UserID       *string
	RestaurantID *string
	OrderID      *string
	Action       AuditAction
	TableName    string
	RecordID     *string
	BeforeState  json.RawMessage
	AfterState   json.RawMessage
	IPAddress    *string
	UserAgent    *string
	Metadata     json.RawMessage
	CreatedAt    time.Time
}
