package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spigell/resume-screener/internal/audit"
)

func (s *Store) AppendAudit(ctx context.Context, event *audit.Event) error {
	before, err := encodeChanges(event.Changes.Before)
	if err != nil {
		return err
	}
	after, err := encodeChanges(event.Changes.After)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
INSERT INTO audit_events (id, owner_id, actor_user_id, actor_email, actor_role, entity_type, entity_id,
  action, message, ip, user_agent, before_json, after_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		event.ID, event.OwnerID, event.Actor.UserID, event.Actor.Email, event.Actor.Role,
		event.EntityType, event.EntityID, event.Action, event.Message, event.IP, event.UserAgent,
		before, after, micros(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, ownerID string, filter audit.Filter) ([]*audit.Event, error) {
	query := `SELECT id, owner_id, actor_user_id, actor_email, actor_role, entity_type, entity_id,
  action, message, ip, user_agent, before_json, after_json, created_at
FROM audit_events WHERE owner_id = ?`
	args := []any{ownerID}
	if filter.EntityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, filter.EntityID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	out := make([]*audit.Event, 0)
	for rows.Next() {
		var (
			event         audit.Event
			before, after string
			created       int64
		)
		if err := rows.Scan(
			&event.ID, &event.OwnerID, &event.Actor.UserID, &event.Actor.Email, &event.Actor.Role,
			&event.EntityType, &event.EntityID, &event.Action, &event.Message, &event.IP, &event.UserAgent,
			&before, &after, &created,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if err := json.Unmarshal([]byte(before), &event.Changes.Before); err != nil {
			return nil, fmt.Errorf("decode audit before: %w", err)
		}
		if err := json.Unmarshal([]byte(after), &event.Changes.After); err != nil {
			return nil, fmt.Errorf("decode audit after: %w", err)
		}
		event.CreatedAt = fromMicros(created)
		out = append(out, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}

func encodeChanges(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode audit changes: %w", err)
	}
	return string(b), nil
}
