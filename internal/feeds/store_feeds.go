package feeds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateFeed inserts feed, assigning an id and timestamps when unset.
func (s *Store) CreateFeed(ctx context.Context, feed *Feed) error {
	if feed == nil {
		return errors.New("feed is nil")
	}
	if feed.Address == "" {
		return errors.New("feed address is empty")
	}
	prepareFeed(feed)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO feeds (`+feedColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.ID,
		feed.Name,
		feed.About,
		nullableString(feed.KeyName),
		feed.Address,
		formatTime(feed.CreatedAt),
		formatTime(feed.UpdatedAt),
		nullableTime(feed.LastPublished),
		nullableTime(feed.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("insert feed: %w", err)
	}
	return nil
}

func prepareFeed(feed *Feed) {
	now := time.Now().UTC()
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = now
	}
	if feed.UpdatedAt.IsZero() {
		feed.UpdatedAt = now
	}
}

// ReplaceFeed deletes the feed oldID and inserts replacement in one
// transaction. Followed placeholders are swapped for the record described by
// the remote manifest this way.
func (s *Store) ReplaceFeed(ctx context.Context, oldID string, replacement *Feed) error {
	if replacement == nil {
		return errors.New("replacement feed is nil")
	}
	ctx = ensureContext(ctx)
	prepareFeed(replacement)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin replace tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("delete placeholder: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feeds (`+feedColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			replacement.ID,
			replacement.Name,
			replacement.About,
			nullableString(replacement.KeyName),
			replacement.Address,
			formatTime(replacement.CreatedAt),
			formatTime(replacement.UpdatedAt),
			nullableTime(replacement.LastPublished),
			nullableTime(replacement.LastUpdated),
		); err != nil {
			return fmt.Errorf("insert replacement: %w", err)
		}
		return tx.Commit()
	})
}

// GetFeed fetches a feed by id. A missing feed returns nil, nil.
func (s *Store) GetFeed(ctx context.Context, id string) (*Feed, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

// FindByAddress returns the feed of kind published under address, or nil.
// A local feed and a followed feed may share an address; KindAll prefers the
// local one.
func (s *Store) FindByAddress(ctx context.Context, address string, kind Kind) (*Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE address = ?`
	switch kind {
	case KindLocal:
		query += ` AND key_name IS NOT NULL`
	case KindFollowed:
		query += ` AND key_name IS NULL`
	}
	query += ` ORDER BY key_name IS NULL LIMIT 1`
	row := s.db.QueryRowContext(ensureContext(ctx), query, address)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find feed by address: %w", err)
	}
	return feed, nil
}

// ListFeeds returns feeds of the requested kind ordered by creation time.
func (s *Store) ListFeeds(ctx context.Context, kind Kind) ([]*Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	switch kind {
	case KindLocal:
		query += ` WHERE key_name IS NOT NULL AND key_name != ''`
	case KindFollowed:
		query += ` WHERE key_name IS NULL OR key_name = ''`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// LocalAddresses returns the set of addresses owned by local feeds.
func (s *Store) LocalAddresses(ctx context.Context) (map[string]struct{}, error) {
	local, err := s.ListFeeds(ctx, KindLocal)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(local))
	for _, feed := range local {
		out[feed.Address] = struct{}{}
	}
	return out, nil
}

// UpdateFeed persists name, about and address changes.
func (s *Store) UpdateFeed(ctx context.Context, feed *Feed) error {
	if feed == nil {
		return errors.New("feed is nil")
	}
	feed.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE feeds SET name = ?, about = ?, address = ?, updated_at = ? WHERE id = ?`,
		feed.Name,
		feed.About,
		feed.Address,
		formatTime(feed.UpdatedAt),
		feed.ID,
	)
	if err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	return requireAffected(res, "feed", feed.ID)
}

// DeleteFeed removes the feed and, through the cascade, its articles.
// Deleting a missing feed is not an error.
func (s *Store) DeleteFeed(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM feeds WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	return nil
}

// MarkPublished records the completion time of a publish attempt.
func (s *Store) MarkPublished(ctx context.Context, id string, at time.Time) error {
	if _, err := s.execWithRetry(ctx, `UPDATE feeds SET last_published = ? WHERE id = ?`, formatTime(at), id); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// MarkUpdated records the completion time of an update attempt.
func (s *Store) MarkUpdated(ctx context.Context, id string, at time.Time) error {
	if _, err := s.execWithRetry(ctx, `UPDATE feeds SET last_updated = ? WHERE id = ?`, formatTime(at), id); err != nil {
		return fmt.Errorf("mark updated: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", what, id)
	}
	return nil
}
