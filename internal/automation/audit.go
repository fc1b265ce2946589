package automation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapu/wolf-autobot-go/internal/obslog"
)

// ActivityRepo is the optional durable activity log. When DATABASE_URL is
// unset the service runs without it and activity events stay in-memory only.
type ActivityRepo struct {
	db *sql.DB
}

func NewActivityRepo(databaseURL string) (*ActivityRepo, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	r := &ActivityRepo{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *ActivityRepo) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS activity_log (
    id         BIGSERIAL PRIMARY KEY,
    level      TEXT        NOT NULL,
    account_id TEXT        NOT NULL,
    message    TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS activity_log_account_idx ON activity_log (account_id, created_at DESC);`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure activity_log schema: %w", err)
	}
	return nil
}

// Insert writes one activity row. Failures are logged and swallowed; the
// audit trail never blocks automation.
func (r *ActivityRepo) Insert(ctx context.Context, level, accountID, message string) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_log (level, account_id, message) VALUES ($1, $2, $3)`,
		level, accountID, message)
	if err != nil {
		obslog.L().Warn("activity_insert_failed", zap.Error(err))
	}
}

// Recent returns the newest n rows for one account, newest first.
func (r *ActivityRepo) Recent(ctx context.Context, accountID string, n int) ([]ActivityRow, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT level, account_id, message, created_at
		   FROM activity_log WHERE account_id = $1
		  ORDER BY created_at DESC LIMIT $2`, accountID, n)
	if err != nil {
		return nil, fmt.Errorf("query activity_log: %w", err)
	}
	defer rows.Close()
	var out []ActivityRow
	for rows.Next() {
		var row ActivityRow
		if err := rows.Scan(&row.Level, &row.AccountID, &row.Message, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type ActivityRow struct {
	Level     string
	AccountID string
	Message   string
	CreatedAt time.Time
}

func (r *ActivityRepo) Close() error { return r.db.Close() }
