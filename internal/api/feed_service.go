package api

import (
	"context"

	"planet/internal/feeds"
	"planet/internal/ledger"
)

// FeedReader abstracts the store queries needed for API reads.
type FeedReader interface {
	ListFeeds(ctx context.Context, kind feeds.Kind) ([]*feeds.Feed, error)
	GetFeed(ctx context.Context, id string) (*feeds.Feed, error)
	ListArticles(ctx context.Context, feedID string) ([]*feeds.Article, error)
	CountArticles(ctx context.Context, feedID string) (total, unread int, err error)
}

// FeedService exposes read-only feed operations returning API DTOs.
type FeedService struct {
	store  FeedReader
	ledger *ledger.State
}

// NewFeedService constructs a FeedService. state may be nil, in which case
// in-flight flags are never set.
func NewFeedService(store FeedReader, state *ledger.State) *FeedService {
	if store == nil {
		return nil
	}
	return &FeedService{store: store, ledger: state}
}

// List returns feeds of the given kind with article counts.
func (s *FeedService) List(ctx context.Context, kind feeds.Kind) ([]Feed, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.ListFeeds(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]Feed, 0, len(items))
	for _, item := range items {
		dto, err := s.convert(ctx, item)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

// Describe returns a feed with its articles, or nil when it does not exist.
func (s *FeedService) Describe(ctx context.Context, id string) (*FeedDetail, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	feed, err := s.store.GetFeed(ctx, id)
	if err != nil || feed == nil {
		return nil, err
	}
	dto, err := s.convert(ctx, feed)
	if err != nil {
		return nil, err
	}
	articles, err := s.store.ListArticles(ctx, id)
	if err != nil {
		return nil, err
	}
	return &FeedDetail{Feed: dto, Articles: FromArticles(articles)}, nil
}

func (s *FeedService) convert(ctx context.Context, feed *feeds.Feed) (Feed, error) {
	dto := FromFeed(feed)
	total, unread, err := s.store.CountArticles(ctx, feed.ID)
	if err != nil {
		return Feed{}, err
	}
	dto.Articles = total
	dto.Unread = unread
	if s.ledger != nil {
		dto.Publishing = s.ledger.InFlight(ledger.Publishing, feed.ID)
		dto.Updating = s.ledger.InFlight(ledger.Updating, feed.ID)
	}
	return dto, nil
}
