package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"relive.org/internal/auth"
	"relive.org/internal/ids"
	"relive.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent emits a structured audit line enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		entry = append(entry, zap.String("user_id", principal.UserID), zap.String("role", string(principal.Role)))
	}
	if len(fields) > 0 {
		entry = append(entry, zap.Any("fields", fields))
	}
	obs.Logger().Info(event, entry...)
	return nil
}

// Entry is one append-only audit_log row.
type Entry struct {
	ID           string
	OccurredAt   time.Time
	ActorUserID  string
	ActorRole    string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
}

// Store appends immutable entries to the audit_log table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append records an entry. Actor identity is pulled from the context when
// the entry does not carry it.
func (s *Store) Append(ctx context.Context, entry *Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if entry.ActorUserID == "" {
		if principal, ok := auth.PrincipalFromContext(ctx); ok {
			entry.ActorUserID = principal.UserID
			entry.ActorRole = string(principal.Role)
		}
	}
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, actor_user_id, actor_role, action, resource_type, resource_id, metadata)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.OccurredAt, entry.ActorUserID, entry.ActorRole,
		entry.Action, entry.ResourceType, entry.ResourceID, meta,
	)
	return err
}
