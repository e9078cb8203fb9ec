package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
)

const inputSourceColumns = `id, name, device_class, capabilities, is_active, is_allocated, priority_rank, created_at, updated_at`

func scanInputSource(row interface {
	Scan(dest ...interface{}) error
}, src *models.InputSource) error {
	return row.Scan(
		&src.ID, &src.Name, &src.DeviceClass, &src.Capabilities,
		&src.IsActive, &src.IsAllocated, &src.PriorityRank,
		&src.CreatedAt, &src.UpdatedAt,
	)
}

// CreateInputSource registers a new tuning device.
func (s *Store) CreateInputSource(ctx context.Context, src *models.InputSource) error {
	query := `
		INSERT INTO switchboard.input_sources (name, device_class, capabilities, is_active, priority_rank)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_allocated, created_at, updated_at
	`
	return s.db.QueryRowContext(ctx, query,
		src.Name, src.DeviceClass, pq.Array([]string(src.Capabilities)), src.IsActive, src.PriorityRank,
	).Scan(&src.ID, &src.IsAllocated, &src.CreatedAt, &src.UpdatedAt)
}

// GetInputSource retrieves a single input source by id.
func (s *Store) GetInputSource(ctx context.Context, id string) (*models.InputSource, error) {
	query := `
		SELECT ` + inputSourceColumns + `
		FROM switchboard.input_sources
		WHERE id = $1
	`
	var src models.InputSource
	err := scanInputSource(s.db.QueryRowContext(ctx, query, id), &src)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// ListInputSources returns all input sources, optionally only active ones,
// ordered by priority rank then name.
func (s *Store) ListInputSources(ctx context.Context, activeOnly bool) ([]models.InputSource, error) {
	query := `
		SELECT ` + inputSourceColumns + `
		FROM switchboard.input_sources
	`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY priority_rank DESC, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []models.InputSource
	for rows.Next() {
		var src models.InputSource
		if err := scanInputSource(rows, &src); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}
