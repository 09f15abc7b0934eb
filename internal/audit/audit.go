// Package audit records an append-only trail of mutations made to owned records.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultLimit is used when a listing does not ask for a size.
	DefaultLimit = 50
	// MaxLimit caps every listing.
	MaxLimit = 100
)

// Actor identifies who performed an action.
type Actor struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Changes holds the before and after projections of the touched fields.
type Changes struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

// Event is a single immutable audit record.
type Event struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Actor      Actor     `json:"actor"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Action     string    `json:"action"`
	Message    string    `json:"message"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"userAgent"`
	Changes    Changes   `json:"changes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Entry is the input for Record.
type Entry struct {
	OwnerID    string
	Actor      Actor
	EntityType string
	EntityID   string
	Action     string
	Message    string
	Before     map[string]any
	After      map[string]any
	IP         string
	UserAgent  string
}

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	EntityType string
	EntityID   string
	Limit      int
}

// Store persists audit events. Implementations must scope listings by owner
// and return them newest first.
type Store interface {
	AppendAudit(ctx context.Context, event *Event) error
	ListAudit(ctx context.Context, ownerID string, filter Filter) ([]*Event, error)
}

// Logger appends audit events. It never reads or rewrites existing ones.
type Logger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a Logger backed by store.
func New(store Store, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Record appends a new event built from entry.
func (l *Logger) Record(ctx context.Context, entry Entry) (*Event, error) {
	if strings.TrimSpace(entry.OwnerID) == "" {
		return nil, errors.New("audit owner is required")
	}
	if strings.TrimSpace(entry.EntityID) == "" || strings.TrimSpace(entry.Action) == "" {
		return nil, errors.New("audit entity id and action are required")
	}

	actor := entry.Actor
	if actor.UserID == "" {
		actor.UserID = entry.OwnerID
	}

	event := &Event{
		ID:         l.newID(),
		OwnerID:    entry.OwnerID,
		Actor:      actor,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Message:    entry.Message,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		Changes: Changes{
			Before: orEmpty(entry.Before),
			After:  orEmpty(entry.After),
		},
		CreatedAt: l.now(),
	}

	if err := l.store.AppendAudit(ctx, event); err != nil {
		return nil, fmt.Errorf("append audit event: %w", err)
	}

	l.logger.Debug("audit event recorded",
		zap.String("action", event.Action),
		zap.String("entity_type", event.EntityType),
		zap.String("entity_id", event.EntityID),
	)

	return event, nil
}

// List returns the owner's events newest first. The limit is clamped to
// [1, MaxLimit] with DefaultLimit for zero.
func (l *Logger) List(ctx context.Context, ownerID string, filter Filter) ([]*Event, error) {
	filter.Limit = ClampLimit(filter.Limit)
	events, err := l.store.ListAudit(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

// ClampLimit applies the listing bounds.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultLimit
	case limit < 1:
		return 1
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
