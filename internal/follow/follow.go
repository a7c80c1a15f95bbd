// Package follow keeps followed feeds in sync with what their owners publish.
//
// An update pins the feed's IPNS name, reads feed.json through the local
// gateway and records article stubs for every entry not yet known. Article
// bodies are fetched lazily with FetchArticle.
package follow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"planet/internal/events"
	"planet/internal/feeds"
	"planet/internal/ipfs"
	"planet/internal/ledger"
	"planet/internal/logging"
	"planet/internal/metrics"
	"planet/internal/services"
)

// Gateway reads published feed files.
type Gateway interface {
	FeedManifest(ctx context.Context, address string) ([]byte, error)
	Avatar(ctx context.Context, address string) ([]byte, bool, error)
	ArticleJSON(ctx context.Context, address, articleID string) ([]byte, error)
}

// Pinner pins content behind a path.
type Pinner interface {
	PinAdd(ctx context.Context, path string) error
}

// Coordinator follows, updates and unfollows remote feeds.
type Coordinator struct {
	store      *feeds.Store
	layout     feeds.Layout
	ledger     *ledger.State
	gateway    Gateway
	pinner     Pinner
	bus        *events.Bus
	metrics    *metrics.Metrics
	logger     *slog.Logger
	pinTimeout time.Duration

	background sync.WaitGroup
}

// New constructs a follow coordinator. Pins run detached from the update
// that started them and are bounded by pinTimeout.
func New(store *feeds.Store, layout feeds.Layout, state *ledger.State, gateway Gateway, pinner Pinner, bus *events.Bus, m *metrics.Metrics, logger *slog.Logger, pinTimeout time.Duration) *Coordinator {
	if pinTimeout <= 0 {
		pinTimeout = 120 * time.Second
	}
	return &Coordinator{
		store:      store,
		layout:     layout,
		ledger:     state,
		gateway:    gateway,
		pinner:     pinner,
		bus:        bus,
		metrics:    m,
		logger:     logging.NewComponentLogger(logger, "follow"),
		pinTimeout: pinTimeout,
	}
}

// Wait blocks until background pins and follow-triggered updates finish.
func (c *Coordinator) Wait() {
	c.background.Wait()
}

// Update refreshes a followed feed from its published manifest. A feed
// already being updated returns nil without doing anything. A feed whose
// address belongs to a local feed is deleted and ErrSelfFollow returned.
func (c *Coordinator) Update(ctx context.Context, feedID string) (err error) {
	ctx = services.WithOperation(services.WithFeedID(ctx, feedID), "update")
	logger := logging.WithContext(ctx, c.logger)

	feed, err := c.followedFeed(ctx, feedID)
	if err != nil {
		return err
	}
	if err := feeds.ValidateAddress(feed.Address); err != nil {
		return err
	}
	if err := c.guardSelfFollow(ctx, feed); err != nil {
		return err
	}

	release, ok := c.ledger.TryBegin(ledger.Updating, feed.ID)
	if !ok {
		logger.Debug("update already in flight; dropping request")
		return nil
	}
	currentID := feed.ID
	defer func() {
		finished := release()
		if markErr := c.store.MarkUpdated(context.WithoutCancel(ctx), currentID, finished); markErr != nil {
			logger.Debug("record last updated failed", logging.Error(markErr))
		}
		c.metrics.Update(metrics.Result(err))
		if err != nil {
			logging.WarnWithContext(logger, "feed update failed", "update_failed",
				logging.Address(feed.Address),
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.String(logging.FieldErrorHint, "the publisher may be offline; the next update retries"),
				logging.String(logging.FieldImpact, "new articles from this feed are not shown yet"),
			)
		}
	}()

	c.pin(ctx, feed.Address)

	data, err := c.gateway.FeedManifest(ctx, feed.Address)
	if err != nil {
		return err
	}
	manifest, err := feeds.ParseManifest(data)
	if err != nil {
		return err
	}
	if manifest.Name == "" {
		return services.Wrap(services.ErrDecode, "follow", "manifest", "manifest has no name", nil)
	}

	current, err := c.applyManifest(ctx, feed, manifest)
	if err != nil {
		logger.Warn("feed record not refreshed", logging.Error(err),
			logging.String(logging.FieldEventType, "update_record_failed"),
			logging.String(logging.FieldErrorHint, "inspect the metadata store"),
			logging.String(logging.FieldImpact, "the feed keeps its previous name"),
		)
		current = feed
	}
	currentID = current.ID

	c.addStubs(ctx, current, manifest)
	c.refreshAvatar(ctx, current)

	logger.Info("feed updated",
		logging.Address(current.Address),
		logging.String("name", current.Name),
		logging.Int("articles", len(manifest.Articles)),
		logging.String(logging.FieldEventType, "feed_updated"),
	)
	return nil
}

func (c *Coordinator) followedFeed(ctx context.Context, feedID string) (*feeds.Feed, error) {
	feed, err := c.store.GetFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, services.Wrap(services.ErrNotFound, "follow", "lookup", "feed "+feedID, nil)
	}
	if feed.IsLocal() {
		return nil, services.Wrap(services.ErrValidation, "follow", "lookup", "feed "+feedID+" is local", nil)
	}
	return feed, nil
}

// guardSelfFollow deletes a followed feed that points at one of our own
// feeds. No network call is made for it.
func (c *Coordinator) guardSelfFollow(ctx context.Context, feed *feeds.Feed) error {
	local, err := c.store.LocalAddresses(ctx)
	if err != nil {
		return err
	}
	if _, own := local[feed.Address]; !own {
		return nil
	}
	if err := c.remove(ctx, feed.ID); err != nil {
		return err
	}
	c.logger.Info("followed feed points at a local feed; removed",
		logging.FeedID(feed.ID),
		logging.Address(feed.Address),
		logging.String(logging.FieldEventType, "self_follow_removed"),
	)
	c.bus.Publish(events.Event{Type: events.SelfFollowRemoved, FeedID: feed.ID, Address: feed.Address})
	return services.Wrap(services.ErrSelfFollow, "follow", "update", feed.Address, nil)
}

func (c *Coordinator) pin(ctx context.Context, address string) {
	if c.pinner == nil {
		return
	}
	path := ipfs.NamePath(address, "")
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		pinCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.pinTimeout)
		defer cancel()
		if err := c.pinner.PinAdd(pinCtx, path); err != nil {
			c.logger.Debug("pin failed", logging.String("path", path), logging.Error(err))
		}
	}()
}

// applyManifest fills a placeholder from the manifest or refreshes name and
// about of a known feed. It returns the feed record now in the store.
func (c *Coordinator) applyManifest(ctx context.Context, feed *feeds.Feed, manifest feeds.Manifest) (*feeds.Feed, error) {
	if feed.IsPlaceholder() {
		replacement := &feeds.Feed{
			ID:        manifest.ID,
			Name:      manifest.Name,
			About:     manifest.About,
			Address:   feed.Address,
			CreatedAt: manifest.Created,
		}
		if err := c.store.ReplaceFeed(ctx, feed.ID, replacement); err != nil {
			return nil, err
		}
		if replacement.ID != feed.ID {
			if err := c.layout.RemoveFeedDir(feed.ID); err != nil {
				c.logger.Debug("placeholder directory not removed", logging.Error(err))
			}
		}
		c.logger.Info("placeholder replaced from manifest",
			logging.String("placeholder_id", feed.ID),
			logging.FeedID(replacement.ID),
			logging.String("name", replacement.Name),
			logging.String(logging.FieldEventType, "follow_resolved"),
		)
		return replacement, nil
	}
	if feed.Name == manifest.Name && feed.About == manifest.About {
		return feed, nil
	}
	updated := *feed
	updated.Name = manifest.Name
	updated.About = manifest.About
	if err := c.store.UpdateFeed(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Coordinator) addStubs(ctx context.Context, feed *feeds.Feed, manifest feeds.Manifest) {
	known, err := c.store.ArticleIDs(ctx, feed.ID)
	if err != nil {
		c.logger.Debug("list known articles failed", logging.Error(err))
		return
	}
	added := 0
	for _, entry := range manifest.Articles {
		if _, ok := known[entry.ID]; ok || entry.ID == "" {
			continue
		}
		stub := &feeds.Article{
			ID:        entry.ID,
			FeedID:    feed.ID,
			Title:     entry.Title,
			CreatedAt: entry.Created,
		}
		if err := c.store.CreateArticle(ctx, stub); err != nil {
			c.logger.Debug("article stub not stored",
				logging.String(logging.FieldArticleID, entry.ID),
				logging.Error(err),
			)
			continue
		}
		known[entry.ID] = struct{}{}
		added++
	}
	if added == 0 {
		return
	}
	c.logger.Info("new articles discovered",
		logging.FeedID(feed.ID),
		logging.Int("count", added),
		logging.String(logging.FieldEventType, "articles_discovered"),
	)
	c.bus.Publish(events.Event{
		Type:     events.ArticlesDiscovered,
		FeedID:   feed.ID,
		FeedName: feed.Name,
		Address:  feed.Address,
		Count:    added,
	})
}

func (c *Coordinator) refreshAvatar(ctx context.Context, feed *feeds.Feed) {
	data, ok, err := c.gateway.Avatar(ctx, feed.Address)
	if err != nil {
		c.logger.Debug("avatar fetch failed", logging.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := c.layout.WriteAvatar(feed.ID, data); err != nil {
		c.logger.Debug("avatar not stored", logging.Error(err))
		return
	}
	c.bus.Publish(events.Event{Type: events.AvatarUpdated, FeedID: feed.ID, Address: feed.Address})
}

// Follow starts following address. It stores a placeholder record and
// resolves it with an update in the background.
func (c *Coordinator) Follow(ctx context.Context, address string) (*feeds.Feed, error) {
	address = feeds.NormalizeAddress(address)
	if err := feeds.ValidateAddress(address); err != nil {
		return nil, err
	}
	local, err := c.store.LocalAddresses(ctx)
	if err != nil {
		return nil, err
	}
	if _, own := local[address]; own {
		return nil, services.Wrap(services.ErrSelfFollow, "follow", "follow", address, nil)
	}
	existing, err := c.store.FindByAddress(ctx, address, feeds.KindFollowed)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, services.Wrap(services.ErrValidation, "follow", "follow", "already following "+address, nil)
	}

	placeholder := &feeds.Feed{Address: address}
	if err := c.store.CreateFeed(ctx, placeholder); err != nil {
		return nil, err
	}
	c.logger.Info("feed followed",
		logging.FeedID(placeholder.ID),
		logging.Address(address),
		logging.String(logging.FieldEventType, "feed_followed"),
	)

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		_ = c.Update(context.WithoutCancel(ctx), placeholder.ID)
	}()
	return placeholder, nil
}

// Unfollow deletes a followed feed with its articles and directory.
func (c *Coordinator) Unfollow(ctx context.Context, feedID string) error {
	feed, err := c.followedFeed(ctx, feedID)
	if err != nil {
		return err
	}
	if err := c.remove(ctx, feed.ID); err != nil {
		return err
	}
	c.logger.Info("feed unfollowed",
		logging.FeedID(feed.ID),
		logging.Address(feed.Address),
		logging.String(logging.FieldEventType, "feed_unfollowed"),
	)
	return nil
}

func (c *Coordinator) remove(ctx context.Context, feedID string) error {
	if err := c.store.DeleteFeed(ctx, feedID); err != nil {
		return err
	}
	c.ledger.Forget(feedID)
	return c.layout.RemoveFeedDir(feedID)
}

// FetchArticle fills the body of an article stub from the publisher's
// article.json. Articles that already have content are returned as stored.
func (c *Coordinator) FetchArticle(ctx context.Context, feedID, articleID string) (*feeds.Article, error) {
	feed, err := c.followedFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	article, err := c.store.GetArticle(ctx, feed.ID, articleID)
	if err != nil {
		return nil, err
	}
	if article == nil {
		return nil, services.Wrap(services.ErrNotFound, "follow", "fetch article", "article "+articleID, nil)
	}
	if !article.IsStub() {
		return article, nil
	}
	data, err := c.gateway.ArticleJSON(ctx, feed.Address, article.ID)
	if err != nil {
		return nil, err
	}
	doc, err := feeds.ParseArticleDocument(data)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "follow", "article.json", article.ID, err)
	}
	if err := c.store.SetArticleContent(ctx, feed.ID, article.ID, doc.Content); err != nil {
		return nil, err
	}
	article.Content = doc.Content
	return article, nil
}
