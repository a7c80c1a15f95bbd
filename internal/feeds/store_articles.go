package feeds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateArticle inserts article, assigning an id and creation time when unset.
func (s *Store) CreateArticle(ctx context.Context, article *Article) error {
	if article == nil {
		return errors.New("article is nil")
	}
	if article.FeedID == "" {
		return errors.New("article feed id is empty")
	}
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO articles (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		article.ID,
		article.FeedID,
		article.Title,
		article.Content,
		formatTime(article.CreatedAt),
		boolToInt(article.Read),
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// GetArticle fetches one article. A missing article returns nil, nil.
func (s *Store) GetArticle(ctx context.Context, feedID, id string) (*Article, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+articleColumns+` FROM articles WHERE feed_id = ? AND id = ?`, feedID, id)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	return article, nil
}

// ListArticles returns the articles of a feed, newest first.
func (s *Store) ListArticles(ctx context.Context, feedID string) ([]*Article, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+articleColumns+` FROM articles WHERE feed_id = ? ORDER BY created_at DESC, id`, feedID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []*Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// ArticleIDs returns the set of article ids stored for a feed.
func (s *Store) ArticleIDs(ctx context.Context, feedID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT id FROM articles WHERE feed_id = ?`, feedID)
	if err != nil {
		return nil, fmt.Errorf("list article ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan article id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// CountArticles returns the number of articles and unread articles in a feed.
func (s *Store) CountArticles(ctx context.Context, feedID string) (total, unread int, err error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1), COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0) FROM articles WHERE feed_id = ?`, feedID)
	if err := row.Scan(&total, &unread); err != nil {
		return 0, 0, fmt.Errorf("count articles: %w", err)
	}
	return total, unread, nil
}

// SetArticleContent stores the fetched or edited body of an article.
func (s *Store) SetArticleContent(ctx context.Context, feedID, id, content string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE articles SET content = ? WHERE feed_id = ? AND id = ?`, content, feedID, id)
	if err != nil {
		return fmt.Errorf("set article content: %w", err)
	}
	return requireAffected(res, "article", id)
}

// MarkRead sets the read flag of an article.
func (s *Store) MarkRead(ctx context.Context, feedID, id string, read bool) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE articles SET read = ? WHERE feed_id = ? AND id = ?`, boolToInt(read), feedID, id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return requireAffected(res, "article", id)
}

// DeleteArticle removes one article row.
func (s *Store) DeleteArticle(ctx context.Context, feedID, id string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM articles WHERE feed_id = ? AND id = ?`, feedID, id); err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return nil
}
