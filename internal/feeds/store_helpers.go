package feeds

import (
	"database/sql"
	"errors"
	"time"
)

const feedColumns = "id, name, about, key_name, address, created_at, updated_at, last_published, last_updated"

const articleColumns = "id, feed_id, title, content, created_at, read"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(scanner rowScanner) (*Feed, error) {
	var (
		feed          Feed
		keyName       sql.NullString
		createdRaw    string
		updatedRaw    string
		publishedRaw  sql.NullString
		lastUpdateRaw sql.NullString
	)
	if err := scanner.Scan(
		&feed.ID,
		&feed.Name,
		&feed.About,
		&keyName,
		&feed.Address,
		&createdRaw,
		&updatedRaw,
		&publishedRaw,
		&lastUpdateRaw,
	); err != nil {
		return nil, err
	}
	feed.KeyName = keyName.String
	if created, err := parseTimeString(createdRaw); err == nil {
		feed.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		feed.UpdatedAt = updated
	}
	feed.LastPublished = parseNullableTime(publishedRaw)
	feed.LastUpdated = parseNullableTime(lastUpdateRaw)
	return &feed, nil
}

func scanArticle(scanner rowScanner) (*Article, error) {
	var (
		article    Article
		createdRaw string
		read       int
	)
	if err := scanner.Scan(
		&article.ID,
		&article.FeedID,
		&article.Title,
		&article.Content,
		&createdRaw,
		&read,
	); err != nil {
		return nil, err
	}
	article.Read = read != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		article.CreatedAt = created
	}
	return &article, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
