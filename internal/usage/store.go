package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge-ai/flowforge/internal/store"
)

// Store provides persistence for the ai_usage ledger.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store and runs usage migrations.
func NewStore(ctx context.Context, st *store.SQLiteStore) (*Store, error) {
	if err := st.Migrate(ctx, "usage", migrations); err != nil {
		return nil, fmt.Errorf("usage migrations: %w", err)
	}
	return &Store{db: st.DB()}, nil
}

// Record appends one ledger row. The row is immutable once written;
// there are no update or delete paths.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var meta []byte
	if rec.Metadata != nil {
		var err error
		meta, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal usage metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_usage (id, principal_id, principal_kind, usage_type, tokens_used, model, success, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PrincipalID, rec.PrincipalKind, rec.UsageType,
		rec.TokensUsed, rec.Model, rec.Success, nullIfEmpty(meta), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// CountForUserSince counts ledger rows for a registered user at or after t.
func (s *Store) CountForUserSince(ctx context.Context, userID string, t time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ai_usage
		WHERE principal_id = ? AND principal_kind = ? AND created_at >= ?`,
		userID, KindRegistered, t.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count user usage: %w", err)
	}
	return count, nil
}

// CountForGuestSince counts ledger rows for a guest fingerprint at or after t.
func (s *Store) CountForGuestSince(ctx context.Context, fingerprint string, t time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ai_usage
		WHERE principal_id = ? AND principal_kind = ? AND created_at >= ?`,
		fingerprint, KindGuest, t.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count guest usage: %w", err)
	}
	return count, nil
}

// LastGuestUse returns the timestamp of the most recent ledger row for a
// guest fingerprint, or nil if the fingerprint has never been seen.
func (s *Store) LastGuestUse(ctx context.Context, fingerprint string) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM ai_usage
		WHERE principal_id = ? AND principal_kind = ?
		ORDER BY created_at DESC LIMIT 1`,
		fingerprint, KindGuest,
	).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last guest use: %w", err)
	}
	return &t, nil
}

// StatsForUser aggregates a registered user's full history plus the 10
// most recent rows.
func (s *Store) StatsForUser(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{RecentUsage: []Record{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(tokens_used), 0)
		FROM ai_usage
		WHERE principal_id = ? AND principal_kind = ?`,
		userID, KindRegistered,
	).Scan(&stats.TotalUsage, &stats.SuccessfulUsage, &stats.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, principal_id, principal_kind, usage_type, tokens_used, model, success, metadata, created_at
		FROM ai_usage
		WHERE principal_id = ? AND principal_kind = ?
		ORDER BY created_at DESC LIMIT 10`,
		userID, KindRegistered,
	)
	if err != nil {
		return nil, fmt.Errorf("recent usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		var meta sql.NullString
		if err := rows.Scan(&rec.ID, &rec.PrincipalID, &rec.PrincipalKind, &rec.UsageType,
			&rec.TokensUsed, &rec.Model, &rec.Success, &meta, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
				rec.Metadata = nil
			}
		}
		stats.RecentUsage = append(stats.RecentUsage, rec)
	}
	return stats, rows.Err()
}

func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// migrations for the usage module.
var migrations = []store.Migration{
	{
		Version:     1,
		Description: "create ai_usage table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE ai_usage (
					id             TEXT PRIMARY KEY,
					principal_id   TEXT NOT NULL,
					principal_kind TEXT NOT NULL,
					usage_type     TEXT NOT NULL,
					tokens_used    INTEGER NOT NULL DEFAULT 0,
					model          TEXT NOT NULL DEFAULT '',
					success        INTEGER NOT NULL DEFAULT 0,
					metadata       TEXT,
					created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`CREATE INDEX idx_ai_usage_principal ON ai_usage(principal_id, principal_kind, created_at)`)
			return err
		},
	},
}
