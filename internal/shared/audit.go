package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bodega/bodega-api/internal/platform/db"
)

// DefaultAuditSource tags entries written by the HTTP API.
const DefaultAuditSource = "api"

// AuditLog is one row of audit_logs: what changed, on which entity, from
// which process.
type AuditLog struct {
	Source   string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db     db.DBTX
	source string
}

// NewAuditLogger returns an AuditLogger stamping DefaultAuditSource.
func NewAuditLogger(conn db.DBTX) *AuditLogger {
	return &AuditLogger{db: conn, source: DefaultAuditSource}
}

// WithSource returns a copy stamping source on entries that carry none.
func (l *AuditLogger) WithSource(source string) *AuditLogger {
	cp := *l
	cp.source = source
	return &cp
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return fmt.Errorf("audit log requires action, entity and entity id: %w", ErrValidation)
	}
	if entry.Source == "" {
		entry.Source = l.source
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("audit meta: %w", err)
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (source, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		entry.Source, entry.Action, entry.Entity, entry.EntityID, meta, at)
	return err
}
