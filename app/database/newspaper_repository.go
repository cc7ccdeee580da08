package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// NewspaperRepo handles database operations for generated editions.
type NewspaperRepo struct {
	db *DB
}

var _ NewspaperRepository = (*NewspaperRepo)(nil)

func NewNewspaperRepository(db *DB) *NewspaperRepo {
	return &NewspaperRepo{db: db}
}

// Upsert overwrites the structure for the given date. Regeneration replaces
// the prior structure wholesale, it never merges.
func (r *NewspaperRepo) Upsert(date time.Time, structure NewspaperStructure) (*Newspaper, error) {
	data, err := json.Marshal(structure)
	if err != nil {
		return nil, fmt.Errorf("failed to encode newspaper structure: %w", err)
	}

	var n Newspaper
	var raw []byte
	err = r.db.QueryRow(`
		INSERT INTO newspapers (date, structure)
		VALUES ($1, $2)
		ON CONFLICT (date) DO UPDATE SET structure = EXCLUDED.structure, updated_at = NOW()
		RETURNING id, date, structure, created_at, updated_at
	`, date.Format("2006-01-02"), data).Scan(&n.ID, &n.Date, &raw, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert newspaper: %w", err)
	}

	if err := json.Unmarshal(raw, &n.Structure); err != nil {
		return nil, fmt.Errorf("failed to decode newspaper structure: %w", err)
	}

	return &n, nil
}

func (r *NewspaperRepo) GetByDate(date time.Time) (*Newspaper, error) {
	var n Newspaper
	var raw []byte
	err := r.db.QueryRow(`
		SELECT id, date, structure, created_at, updated_at
		FROM newspapers
		WHERE date = $1
	`, date.Format("2006-01-02")).Scan(&n.ID, &n.Date, &raw, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get newspaper: %w", err)
	}

	if err := json.Unmarshal(raw, &n.Structure); err != nil {
		return nil, fmt.Errorf("failed to decode newspaper structure: %w", err)
	}

	return &n, nil
}
