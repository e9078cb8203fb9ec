package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
)

const allocationColumns = `id, input_source_id, game_id, channel_number, tv_output_ids, allocated_at, expected_free_at, actually_freed_at, status, created_at, updated_at`

func scanAllocation(row interface {
	Scan(dest ...interface{}) error
}, a *models.InputSourceAllocation) error {
	return row.Scan(
		&a.ID, &a.InputSourceID, &a.GameID, &a.ChannelNumber, &a.TVOutputIDs,
		&a.AllocatedAt, &a.ExpectedFreeAt, &a.ActuallyFreedAt, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
}

// ListAllocationsFilter narrows ListAllocations; zero values mean no filter.
type ListAllocationsFilter struct {
	Status        models.AllocationStatus
	InputSourceID string
	GameID        string
}

// CreateAllocation inserts an allocation originated by an external caller
// (admin UI or game ingestion). Allocations may arrive pending or already
// active; an active insert claims the source's allocated flag in the same
// transaction and fails with ErrConflict if the source already has an active
// binding.
func (s *Store) CreateAllocation(ctx context.Context, a *models.InputSourceAllocation) error {
	if a.Status != models.AllocationPending && a.Status != models.AllocationActive {
		return fmt.Errorf("allocations are created pending or active, got %q", a.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if a.Status == models.AllocationActive {
		res, err := tx.ExecContext(ctx, `
			UPDATE switchboard.input_sources
			SET is_allocated = TRUE, updated_at = NOW()
			WHERE id = $1 AND is_allocated = FALSE
		`, a.InputSourceID)
		if err != nil {
			return err
		}
		claimed, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if claimed == 0 {
			return ErrConflict
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO switchboard.input_source_allocations
			(input_source_id, game_id, channel_number, tv_output_ids, allocated_at, expected_free_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, allocated_at, created_at, updated_at
	`,
		a.InputSourceID, a.GameID, a.ChannelNumber, pq.Array([]string(a.TVOutputIDs)),
		a.AllocatedAt, a.ExpectedFreeAt, a.Status,
	).Scan(&a.ID, &a.AllocatedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetAllocation retrieves an allocation by id.
func (s *Store) GetAllocation(ctx context.Context, id string) (*models.InputSourceAllocation, error) {
	query := `
		SELECT ` + allocationColumns + `
		FROM switchboard.input_source_allocations
		WHERE id = $1
	`
	var a models.InputSourceAllocation
	err := scanAllocation(s.db.QueryRowContext(ctx, query, id), &a)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAllocations returns allocations matching the filter, newest first.
func (s *Store) ListAllocations(ctx context.Context, filter ListAllocationsFilter) ([]models.InputSourceAllocation, error) {
	query := `
		SELECT ` + allocationColumns + `
		FROM switchboard.input_source_allocations
		WHERE 1=1
	`
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.InputSourceID != "" {
		args = append(args, filter.InputSourceID)
		query += fmt.Sprintf(" AND input_source_id = $%d", len(args))
	}
	if filter.GameID != "" {
		args = append(args, filter.GameID)
		query += fmt.Sprintf(" AND game_id = $%d", len(args))
	}
	query += ` ORDER BY allocated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []models.InputSourceAllocation
	for rows.Next() {
		var a models.InputSourceAllocation
		if err := scanAllocation(rows, &a); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// ListActiveAllocations returns every active allocation, oldest first. This
// is the sweep's working set.
func (s *Store) ListActiveAllocations(ctx context.Context) ([]models.InputSourceAllocation, error) {
	query := `
		SELECT ` + allocationColumns + `
		FROM switchboard.input_source_allocations
		WHERE status = 'active'
		ORDER BY allocated_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []models.InputSourceAllocation
	for rows.Next() {
		var a models.InputSourceAllocation
		if err := scanAllocation(rows, &a); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// CompleteAllocation transitions an allocation from active to completed and
// clears the source's allocated flag, in one transaction. The UPDATE
// predicate re-checks the status, so a release that already happened (manual
// override racing a sweep, or vice versa) surfaces as ErrConflict instead of
// a double release. A released history row is appended in the same
// transaction.
func (s *Store) CompleteAllocation(ctx context.Context, id string, reason models.ReleaseReason) (*models.InputSourceAllocation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var a models.InputSourceAllocation
	err = scanAllocation(tx.QueryRowContext(ctx, `
		UPDATE switchboard.input_source_allocations
		SET status = 'completed', actually_freed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING `+allocationColumns+`
	`, id), &a)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE switchboard.input_sources
		SET is_allocated = FALSE, updated_at = NOW()
		WHERE id = $1
	`, a.InputSourceID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO switchboard.reallocation_history (allocation_id, event, reason, success)
		VALUES ($1, 'released', $2, TRUE)
	`, a.ID, reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &a, nil
}

// PromoteNextPending promotes exactly one pending allocation for a freed
// source: earliest allocated_at first, ties broken by the linked game's
// calculated priority, descending. The transaction first verifies the source
// has no active allocation (ErrConflict otherwise), so the at-most-one-active
// invariant holds even against a concurrent create. ErrNotFound means no
// pending demand exists for the source.
func (s *Store) PromoteNextPending(ctx context.Context, sourceID string) (*models.InputSourceAllocation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var activeExists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM switchboard.input_source_allocations
			WHERE input_source_id = $1 AND status = 'active'
		)
	`, sourceID).Scan(&activeExists); err != nil {
		return nil, err
	}
	if activeExists {
		return nil, ErrConflict
	}

	var nextID string
	err = tx.QueryRowContext(ctx, `
		SELECT a.id
		FROM switchboard.input_source_allocations a
		JOIN switchboard.game_schedules g ON g.id = a.game_id
		WHERE a.input_source_id = $1 AND a.status = 'pending'
		ORDER BY a.allocated_at, g.calculated_priority DESC
		LIMIT 1
		FOR UPDATE OF a SKIP LOCKED
	`, sourceID).Scan(&nextID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var a models.InputSourceAllocation
	err = scanAllocation(tx.QueryRowContext(ctx, `
		UPDATE switchboard.input_source_allocations
		SET status = 'active', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+allocationColumns+`
	`, nextID), &a)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE switchboard.input_sources
		SET is_allocated = TRUE, updated_at = NOW()
		WHERE id = $1
	`, sourceID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO switchboard.reallocation_history (allocation_id, event, reason, success)
		VALUES ($1, 'promoted', $2, TRUE)
	`, a.ID, models.ReasonSourceFreed); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &a, nil
}
