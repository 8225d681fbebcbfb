// Package storage is the SQLite persistence layer: session-scoped
// savings goals and the overlay event journal.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finsight/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GoalUpdate carries partial goal changes; nil fields are left as-is.
type GoalUpdate struct {
	Name          *string
	TargetAmount  *decimal.Decimal
	CurrentAmount *decimal.Decimal
	TargetDate    *core.Date
	Category      *string
	Description   *string
	IsActive      *bool
}

const goalColumns = `id, session_id, name, target_amount, current_amount,
	target_date, category, description, created_at, updated_at, is_active`

// CreateGoal persists a new goal, assigning its ID and timestamps.
func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	now := time.Now().UTC()
	g.ID = uuid.NewString()
	g.CreatedAt = now
	g.UpdatedAt = now
	g.IsActive = true

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.SessionID, g.Name,
		g.TargetAmount.String(), g.CurrentAmount.String(), g.TargetDate.String(),
		g.Category, g.Description,
		g.CreatedAt.Format(time.RFC3339), g.UpdatedAt.Format(time.RFC3339),
		g.IsActive,
	)
	if err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal saved",
		"id", g.ID,
		"name", g.Name,
		"target_amount", g.TargetAmount,
		"target_date", g.TargetDate)
	return g, nil
}

// ListGoals returns the session's goals, oldest first.
func (r *SQLiteRepository) ListGoals(ctx context.Context, sessionID string) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+goalColumns+` FROM goals
		WHERE session_id = ?
		ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

// GetGoal fetches one goal scoped to the owning session.
func (r *SQLiteRepository) GetGoal(ctx context.Context, sessionID, goalID string) (core.Goal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+goalColumns+` FROM goals
		WHERE session_id = ? AND id = ?`,
		sessionID, goalID,
	)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, core.ErrGoalNotFound
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

// UpdateGoal applies the non-nil fields of the update and bumps the
// updated timestamp.
func (r *SQLiteRepository) UpdateGoal(ctx context.Context, sessionID, goalID string, u GoalUpdate) (core.Goal, error) {
	g, err := r.GetGoal(ctx, sessionID, goalID)
	if err != nil {
		return core.Goal{}, err
	}

	if u.Name != nil {
		g.Name = *u.Name
	}
	if u.TargetAmount != nil {
		g.TargetAmount = *u.TargetAmount
	}
	if u.CurrentAmount != nil {
		g.CurrentAmount = *u.CurrentAmount
	}
	if u.TargetDate != nil {
		g.TargetDate = *u.TargetDate
	}
	if u.Category != nil {
		g.Category = *u.Category
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	if u.IsActive != nil {
		g.IsActive = *u.IsActive
	}
	g.UpdatedAt = time.Now().UTC()

	_, err = r.db.ExecContext(ctx, `
		UPDATE goals SET
			name = ?, target_amount = ?, current_amount = ?, target_date = ?,
			category = ?, description = ?, updated_at = ?, is_active = ?
		WHERE session_id = ? AND id = ?`,
		g.Name, g.TargetAmount.String(), g.CurrentAmount.String(), g.TargetDate.String(),
		g.Category, g.Description, g.UpdatedAt.Format(time.RFC3339), g.IsActive,
		sessionID, goalID,
	)
	if err != nil {
		return core.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	return g, nil
}

// DeleteGoal removes one goal scoped to the owning session.
func (r *SQLiteRepository) DeleteGoal(ctx context.Context, sessionID, goalID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM goals WHERE session_id = ? AND id = ?`,
		sessionID, goalID,
	)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if affected == 0 {
		return core.ErrGoalNotFound
	}

	slog.InfoContext(ctx, "Goal deleted", "id", goalID)
	return nil
}

// AppendOverlayEvent journals one overlay event for audit and replay.
func (r *SQLiteRepository) AppendOverlayEvent(ctx context.Context, sessionID, kind string, payload []byte, occurredAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO overlay_events (session_id, kind, payload, occurred_at)
		VALUES (?, ?, ?, ?)`,
		sessionID, kind, string(payload), occurredAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append overlay event: %w", err)
	}
	return nil
}

// CountOverlayEvents reports how many events a session has journaled.
func (r *SQLiteRepository) CountOverlayEvents(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM overlay_events WHERE session_id = ?`,
		sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count overlay events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (core.Goal, error) {
	var (
		g                    core.Goal
		target, current, due string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&g.ID, &g.SessionID, &g.Name, &target, &current, &due,
		&g.Category, &g.Description, &createdAt, &updatedAt, &g.IsActive,
	)
	if err != nil {
		return core.Goal{}, err
	}

	if g.TargetAmount, err = decimal.NewFromString(target); err != nil {
		return core.Goal{}, fmt.Errorf("parse target amount: %w", err)
	}
	if g.CurrentAmount, err = decimal.NewFromString(current); err != nil {
		return core.Goal{}, fmt.Errorf("parse current amount: %w", err)
	}
	if g.TargetDate, err = core.ParseDate(due); err != nil {
		return core.Goal{}, fmt.Errorf("parse target date: %w", err)
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return core.Goal{}, fmt.Errorf("parse created_at: %w", err)
	}
	if g.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return core.Goal{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return g, nil
}
