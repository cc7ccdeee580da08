package database

import (
	"fmt"
	"time"
)

// FeedRepo handles database operations for feeds.
type FeedRepo struct {
	db *DB
}

var _ FeedRepository = (*FeedRepo)(nil)

func NewFeedRepository(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

// UpsertFeed registers a configured feed by URL, updating the name when the
// configuration changed.
func (r *FeedRepo) UpsertFeed(url, name string) (int64, error) {
	var id int64
	err := r.db.QueryRow(`
		INSERT INTO feeds (url, name)
		VALUES ($1, $2)
		ON CONFLICT (url) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, url, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert feed: %w", err)
	}

	return id, nil
}

func (r *FeedRepo) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM feeds`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}

	return count, nil
}

func (r *FeedRepo) SetLastFetched(id int64, fetchedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds SET last_fetched_at = $2 WHERE id = $1
	`, id, fetchedAt)
	if err != nil {
		return fmt.Errorf("failed to update last_fetched_at: %w", err)
	}

	return nil
}
