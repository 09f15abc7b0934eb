package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	events []*Event
	err    error
	filter Filter
}

func (f *fakeStore) AppendAudit(_ context.Context, event *Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStore) ListAudit(_ context.Context, _ string, filter Filter) ([]*Event, error) {
	f.filter = filter
	return f.events, nil
}

func TestRecord(t *testing.T) {
	store := &fakeStore{}
	logger := New(store, nil)
	logger.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	logger.newID = func() string { return "evt-1" }

	event, err := logger.Record(context.Background(), Entry{
		OwnerID:    "owner-1",
		Actor:      Actor{Email: "rec@example.com", Role: "recruiter"},
		EntityType: "evaluation",
		EntityID:   "eval-1",
		Action:     "evaluation.created",
		Message:    "Evaluation created",
		After:      map[string]any{"score": 80, "status": "new"},
		IP:         "10.0.0.1",
		UserAgent:  "curl/8",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if event.ID != "evt-1" || !event.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected identity fields: %+v", event)
	}
	if event.Actor.UserID != "owner-1" {
		t.Fatalf("expected actor to default to owner, got %q", event.Actor.UserID)
	}
	if event.Changes.Before == nil || len(event.Changes.Before) != 0 {
		t.Fatalf("expected empty before snapshot, got %v", event.Changes.Before)
	}
	if event.Changes.After["score"] != 80 {
		t.Fatalf("unexpected after snapshot: %v", event.Changes.After)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected one stored event, got %d", len(store.events))
	}
}

func TestRecordValidatesAndWrapsErrors(t *testing.T) {
	logger := New(&fakeStore{}, nil)
	if _, err := logger.Record(context.Background(), Entry{EntityID: "x", Action: "a"}); err == nil {
		t.Fatalf("expected error for missing owner")
	}
	if _, err := logger.Record(context.Background(), Entry{OwnerID: "o"}); err == nil {
		t.Fatalf("expected error for missing entity and action")
	}

	boom := errors.New("disk full")
	logger = New(&fakeStore{err: boom}, nil)
	_, err := logger.Record(context.Background(), Entry{OwnerID: "o", EntityID: "e", Action: "a"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestListClampsLimit(t *testing.T) {
	tests := []struct {
		in     int
		expect int
	}{
		{in: 0, expect: DefaultLimit},
		{in: -5, expect: 1},
		{in: 7, expect: 7},
		{in: 1000, expect: MaxLimit},
	}

	for _, tt := range tests {
		store := &fakeStore{}
		logger := New(store, nil)
		if _, err := logger.List(context.Background(), "owner", Filter{EntityType: "evaluation", Limit: tt.in}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if store.filter.Limit != tt.expect {
			t.Fatalf("limit %d: expected %d, got %d", tt.in, tt.expect, store.filter.Limit)
		}
		if store.filter.EntityType != "evaluation" {
			t.Fatalf("expected filter to pass through, got %+v", store.filter)
		}
	}
}
