package store

import (
	"context"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
)

// AppendHistory records a release or promotion decision. History is
// append-only and advisory; decisions are never made from it.
func (s *Store) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	query := `
		INSERT INTO switchboard.reallocation_history (allocation_id, event, reason, success, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return s.db.QueryRowContext(ctx, query,
		entry.AllocationID, entry.Event, entry.Reason, entry.Success, entry.Detail,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// ListHistory returns the most recent entries, most recent first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, allocation_id, event, reason, success, detail, created_at
		FROM switchboard.reallocation_history
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.AllocationID, &e.Event, &e.Reason, &e.Success, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
