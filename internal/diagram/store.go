package diagram

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge-ai/flowforge/internal/store"
)

// Store provides persistence for diagrams. All reads and writes are
// scoped to an owner; one user can never touch another's diagrams.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store and runs diagram migrations.
func NewStore(ctx context.Context, st *store.SQLiteStore) (*Store, error) {
	if err := st.Migrate(ctx, "diagram", migrations); err != nil {
		return nil, fmt.Errorf("diagram migrations: %w", err)
	}
	return &Store{db: st.DB()}, nil
}

// Create inserts a new diagram, filling ID and timestamps.
func (s *Store) Create(ctx context.Context, d *Diagram) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diagrams (id, owner_id, title, content, thumbnail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Title, d.Content, d.Thumbnail, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create diagram: %w", err)
	}
	return nil
}

// Get fetches one diagram owned by ownerID.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*Diagram, error) {
	var d Diagram
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, content, thumbnail, created_at, updated_at
		FROM diagrams WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	).Scan(&d.ID, &d.OwnerID, &d.Title, &d.Content, &d.Thumbnail, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get diagram: %w", err)
	}
	return &d, nil
}

// List returns all diagrams owned by ownerID, most recently updated first.
func (s *Store) List(ctx context.Context, ownerID string) ([]Diagram, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, content, thumbnail, created_at, updated_at
		FROM diagrams WHERE owner_id = ?
		ORDER BY updated_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	defer rows.Close()

	diagrams := []Diagram{}
	for rows.Next() {
		var d Diagram
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Content, &d.Thumbnail, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan diagram: %w", err)
		}
		diagrams = append(diagrams, d)
	}
	return diagrams, rows.Err()
}

// Update rewrites title, content and thumbnail and bumps updated_at.
func (s *Store) Update(ctx context.Context, d *Diagram) error {
	d.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE diagrams SET title = ?, content = ?, thumbnail = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		d.Title, d.Content, d.Thumbnail, d.UpdatedAt, d.ID, d.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update diagram: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update diagram: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one diagram owned by ownerID.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM diagrams WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete diagram: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete diagram: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// migrations for the diagram module.
var migrations = []store.Migration{
	{
		Version:     1,
		Description: "create diagrams table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE diagrams (
					id         TEXT PRIMARY KEY,
					owner_id   TEXT NOT NULL,
					title      TEXT NOT NULL DEFAULT 'Untitled',
					content    TEXT NOT NULL,
					thumbnail  TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`CREATE INDEX idx_diagrams_owner ON diagrams(owner_id, updated_at)`)
			return err
		},
	},
}
