package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"planet/internal/ipfs"
	"planet/internal/logging"
	"planet/internal/services"
)

// KeyManager manages the publishing keys held by the daemon.
type KeyManager interface {
	KeyList(ctx context.Context) ([]ipfs.Key, error)
	KeyGen(ctx context.Context, name string) (ipfs.Key, error)
	KeyRemove(ctx context.Context, name string) error
}

// GatewayProber checks whether published content is served by the gateway.
type GatewayProber interface {
	Reachable(ctx context.Context, path string) bool
	URL(path string) string
}

// Service combines the store, content layout and daemon keys into the feed
// operations exposed to the CLI and API.
type Service struct {
	store    *Store
	layout   Layout
	keys     KeyManager
	gateway  GatewayProber
	renderer Renderer
	logger   *slog.Logger
}

// NewService wires a feed service. A nil renderer uses MarkdownRenderer.
func NewService(store *Store, layout Layout, keys KeyManager, gateway GatewayProber, renderer Renderer, logger *slog.Logger) *Service {
	if renderer == nil {
		renderer = MarkdownRenderer{}
	}
	return &Service{
		store:    store,
		layout:   layout,
		keys:     keys,
		gateway:  gateway,
		renderer: renderer,
		logger:   logging.NewComponentLogger(logger, "feeds"),
	}
}

// Store returns the underlying metadata store.
func (s *Service) Store() *Store { return s.store }

// Layout returns the content layout.
func (s *Service) Layout() Layout { return s.layout }

// CreateFeed generates a publishing key named after a new feed id and stores
// the feed with the key's IPNS name as its address.
func (s *Service) CreateFeed(ctx context.Context, name, about string) (*Feed, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "feeds", "create", "feed name is required", nil)
	}
	id := uuid.NewString()
	key, err := s.ensureKey(ctx, id)
	if err != nil {
		return nil, err
	}

	feed := &Feed{
		ID:      id,
		Name:    normalizeText(name),
		About:   normalizeText(about),
		KeyName: key.Name,
		Address: key.ID,
	}
	if err := s.store.CreateFeed(ctx, feed); err != nil {
		s.removeKey(ctx, key.Name)
		return nil, err
	}
	if err := s.layout.EnsureFeedDir(feed.ID); err != nil {
		return nil, err
	}
	s.logger.Info("feed created",
		logging.FeedID(feed.ID),
		logging.Address(feed.Address),
		logging.String(logging.FieldEventType, "feed_created"),
	)
	return feed, nil
}

func (s *Service) ensureKey(ctx context.Context, name string) (ipfs.Key, error) {
	keys, err := s.keys.KeyList(ctx)
	if err != nil {
		return ipfs.Key{}, fmt.Errorf("list keys: %w", err)
	}
	for _, key := range keys {
		if key.Name == name && key.ID != "" {
			return key, nil
		}
	}
	key, err := s.keys.KeyGen(ctx, name)
	if err != nil {
		return ipfs.Key{}, fmt.Errorf("generate key: %w", err)
	}
	if key.Name == "" || key.ID == "" {
		return ipfs.Key{}, services.Wrap(services.ErrExternalTool, "feeds", "key gen", "daemon returned an empty key", nil)
	}
	return key, nil
}

func (s *Service) removeKey(ctx context.Context, name string) {
	if err := s.keys.KeyRemove(ctx, name); err != nil {
		s.logger.Debug("key removal failed", logging.String("key", name), logging.Error(err))
	}
}

// DeleteFeed removes a feed, its articles and its directory. Local feeds also
// lose their publishing key; key removal is best-effort.
func (s *Service) DeleteFeed(ctx context.Context, id string) error {
	feed, err := s.store.GetFeed(ctx, id)
	if err != nil {
		return err
	}
	if feed == nil {
		return services.Wrap(services.ErrNotFound, "feeds", "delete", "feed "+id, nil)
	}
	if feed.IsLocal() {
		s.removeKey(ctx, feed.KeyName)
	}
	if err := s.store.DeleteFeed(ctx, id); err != nil {
		return err
	}
	if err := s.layout.RemoveFeedDir(id); err != nil {
		return err
	}
	s.logger.Info("feed deleted",
		logging.FeedID(id),
		logging.Bool("local", feed.IsLocal()),
		logging.String(logging.FieldEventType, "feed_deleted"),
	)
	return nil
}

// AddArticle stores a new article on a local feed and renders it into the
// feed directory. It is published with the next publish of the feed.
func (s *Service) AddArticle(ctx context.Context, feedID, title, content string) (*Article, error) {
	feed, err := s.localFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "feeds", "add article", "article title is required", nil)
	}
	article := &Article{FeedID: feed.ID, Title: normalizeText(title), Content: content, Read: true}
	if err := s.store.CreateArticle(ctx, article); err != nil {
		return nil, err
	}
	if err := s.renderer.Render(feed, article, s.layout.ArticleDir(feed.ID, article.ID)); err != nil {
		return nil, fmt.Errorf("render article: %w", err)
	}
	return article, nil
}

// DeleteArticle removes an article from a local feed along with its files.
func (s *Service) DeleteArticle(ctx context.Context, feedID, articleID string) error {
	feed, err := s.localFeed(ctx, feedID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteArticle(ctx, feed.ID, articleID); err != nil {
		return err
	}
	return s.layout.RemoveArticleDir(feed.ID, articleID)
}

func (s *Service) localFeed(ctx context.Context, feedID string) (*Feed, error) {
	feed, err := s.store.GetFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, services.Wrap(services.ErrNotFound, "feeds", "lookup", "feed "+feedID, nil)
	}
	if !feed.IsLocal() {
		return nil, services.Wrap(services.ErrValidation, "feeds", "lookup", "feed "+feedID+" is followed, not local", nil)
	}
	return feed, nil
}

// ArticleURL resolves where an article can be read. Local articles resolve to
// their rendered file. Followed articles resolve to the gateway URL once the
// gateway serves the page.
func (s *Service) ArticleURL(ctx context.Context, feedID, articleID string) (string, error) {
	feed, err := s.store.GetFeed(ctx, feedID)
	if err != nil {
		return "", err
	}
	if feed == nil {
		return "", services.Wrap(services.ErrNotFound, "feeds", "article url", "feed "+feedID, nil)
	}
	article, err := s.store.GetArticle(ctx, feedID, articleID)
	if err != nil {
		return "", err
	}
	if article == nil {
		return "", services.Wrap(services.ErrNotFound, "feeds", "article url", "article "+articleID, nil)
	}

	if feed.IsLocal() {
		u := url.URL{Scheme: "file", Path: s.layout.ArticleIndexPath(feed.ID, article.ID)}
		return u.String(), nil
	}

	path := ipfs.NamePath(feed.Address, article.ID+"/"+IndexFile)
	if s.gateway == nil || !s.gateway.Reachable(ctx, path) {
		return "", services.Wrap(services.ErrNotFound, "feeds", "article url", "gateway does not serve "+path, nil)
	}
	return s.gateway.URL(path), nil
}

// IsNotFound reports whether err means the feed or article does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
