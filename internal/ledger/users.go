package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUserExists is returned by Create when the name is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by mutations that target an unknown name.
	ErrUserNotFound = errors.New("user not found")
)

const userColumns = `name, id, score, complete_times, reminder_items, created_at, updated_at`

// Lookup returns the user registered under name, or nil when absent.
func (s *Store) Lookup(ctx context.Context, name string) (*User, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE name = ?`, name)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// Create registers a new user with no score and an empty reminder list.
func (s *Store) Create(ctx context.Context, name string, id int64) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("create user: name is required")
	}
	now := time.Now().UTC()
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE name = ?`, name).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return ErrUserExists
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (name, id, score, complete_times, reminder_items, created_at, updated_at)
			 VALUES (?, ?, NULL, 0, '[]', ?, ?)`,
			name, id, formatTime(now), formatTime(now),
		)
		return err
	})
	if errors.Is(err, ErrUserExists) {
		return nil, fmt.Errorf("create user %q: %w", name, ErrUserExists)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &User{Name: name, ID: id, ReminderItems: []string{}, CreatedAt: now, UpdatedAt: now}, nil
}

// ApplyOutcome stores a new score and disposal count for name.
func (s *Store) ApplyOutcome(ctx context.Context, name string, score float64, times int) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return applyOutcome(ctx, tx, name, score, times)
	})
}

// SetReminderItems replaces the reminder list for name.
func (s *Store) SetReminderItems(ctx context.Context, name string, items []string) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return setReminderItems(ctx, tx, name, items)
	})
}

// RecordOutcome commits a scored disposal: the new score, the reminder list,
// and the history row land together or not at all.
func (s *Store) RecordOutcome(ctx context.Context, outcome Outcome) (Disposal, error) {
	disposal := outcome.Disposal
	disposal.UserName = outcome.Name
	disposal.Score = outcome.Score
	disposal.CompleteTimes = outcome.CompleteTimes
	if disposal.ID == "" {
		disposal.ID = newDisposalID()
	}
	if disposal.CreatedAt.IsZero() {
		disposal.CreatedAt = time.Now().UTC()
	}
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := applyOutcome(ctx, tx, outcome.Name, outcome.Score, outcome.CompleteTimes); err != nil {
			return err
		}
		if err := setReminderItems(ctx, tx, outcome.Name, outcome.ReminderItems); err != nil {
			return err
		}
		return insertDisposal(ctx, tx, disposal)
	})
	if err != nil {
		return Disposal{}, fmt.Errorf("record outcome: %w", err)
	}
	return disposal, nil
}

// List returns every user ordered by name.
func (s *Store) List(ctx context.Context) ([]*User, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func applyOutcome(ctx context.Context, tx *sql.Tx, name string, score float64, times int) error {
	if times <= 0 {
		return fmt.Errorf("apply outcome: complete_times must be positive, got %d", times)
	}
	if score < 0 || score > 100 {
		return fmt.Errorf("apply outcome: score %.3f out of range", score)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET score = ?, complete_times = ?, updated_at = ? WHERE name = ?`,
		score, times, formatTime(time.Now()), name,
	)
	if err != nil {
		return err
	}
	return requireRow(res, name)
}

func setReminderItems(ctx context.Context, tx *sql.Tx, name string, items []string) error {
	if items == nil {
		items = []string{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode reminder items: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET reminder_items = ?, updated_at = ? WHERE name = ?`,
		string(encoded), formatTime(time.Now()), name,
	)
	if err != nil {
		return err
	}
	return requireRow(res, name)
}

func requireRow(res sql.Result, name string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	return nil
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (*User, error) {
	var (
		user       User
		score      sql.NullFloat64
		reminders  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&user.Name, &user.ID, &score, &user.CompleteTimes, &reminders, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	if score.Valid {
		value := score.Float64
		user.Score = &value
	}
	user.ReminderItems = []string{}
	if strings.TrimSpace(reminders) != "" {
		if err := json.Unmarshal([]byte(reminders), &user.ReminderItems); err != nil {
			return nil, fmt.Errorf("decode reminder items for %s: %w", user.Name, err)
		}
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		user.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		user.UpdatedAt = t
	}
	return &user, nil
}
