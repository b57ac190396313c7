package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const disposalColumns = `id, user_name, item, category, status_code, correct, score, complete_times, created_at`

func newDisposalID() string {
	return uuid.NewString()
}

func insertDisposal(ctx context.Context, tx *sql.Tx, d Disposal) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO disposals (`+disposalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserName, d.Item, d.Category, d.StatusCode, boolToInt(d.Correct),
		d.Score, d.CompleteTimes, formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert disposal: %w", err)
	}
	return nil
}

// History returns the most recent disposals for name, newest first. A limit of
// zero or less returns every row.
func (s *Store) History(ctx context.Context, name string, limit int) ([]Disposal, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + disposalColumns + ` FROM disposals WHERE user_name = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{name}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("disposal history: %w", err)
	}
	defer rows.Close()

	var out []Disposal
	for rows.Next() {
		var (
			d          Disposal
			correct    int
			createdRaw string
		)
		if err := rows.Scan(&d.ID, &d.UserName, &d.Item, &d.Category, &d.StatusCode, &correct,
			&d.Score, &d.CompleteTimes, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan disposal: %w", err)
		}
		d.Correct = correct != 0
		if t, err := parseTimeString(createdRaw); err == nil {
			d.CreatedAt = t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats summarizes the ledger for status displays.
type Stats struct {
	Users     int
	Disposals int
	Correct   int
}

// Stats counts users and disposals.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&stats.Users); err != nil {
		return Stats{}, fmt.Errorf("count users: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(correct), 0) FROM disposals`,
	).Scan(&stats.Disposals, &stats.Correct); err != nil {
		return Stats{}, fmt.Errorf("count disposals: %w", err)
	}
	return stats, nil
}
