package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
)

// Game schedules are owned by the ingestion pipeline; switchboard reads them
// and never writes.

const gameColumns = `id, league, home_team, away_team, scheduled_start, estimated_end, status, calculated_priority, is_priority_game, created_at, updated_at`

func scanGame(row interface {
	Scan(dest ...interface{}) error
}, g *models.GameSchedule) error {
	return row.Scan(
		&g.ID, &g.League, &g.HomeTeam, &g.AwayTeam,
		&g.ScheduledStart, &g.EstimatedEnd, &g.Status,
		&g.CalculatedPriority, &g.IsPriorityGame,
		&g.CreatedAt, &g.UpdatedAt,
	)
}

// GetGame retrieves a full game schedule row by id.
func (s *Store) GetGame(ctx context.Context, id string) (*models.GameSchedule, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM switchboard.game_schedules
		WHERE id = $1
	`
	var g models.GameSchedule
	err := scanGame(s.db.QueryRowContext(ctx, query, id), &g)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGameState retrieves the slice of a game the reallocation engine decides
// on: status, estimated end, and calculated priority.
func (s *Store) GetGameState(ctx context.Context, gameID string) (*models.GameState, error) {
	query := `
		SELECT id, status, estimated_end, calculated_priority
		FROM switchboard.game_schedules
		WHERE id = $1
	`
	var state models.GameState
	err := s.db.QueryRowContext(ctx, query, gameID).Scan(
		&state.GameID, &state.Status, &state.EstimatedEnd, &state.CalculatedPriority,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// ListGames returns game schedules, optionally filtered by status, soonest
// start first.
func (s *Store) ListGames(ctx context.Context, status models.GameStatus) ([]models.GameSchedule, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM switchboard.game_schedules
	`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY scheduled_start`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []models.GameSchedule
	for rows.Next() {
		var g models.GameSchedule
		if err := scanGame(rows, &g); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
