// Package publish turns a local feed directory into an IPNS update.
//
// A publish rebuilds feed.json from the store, adds the feed directory to the
// daemon and points the feed's key at the resulting root CID. At most one
// publish per feed runs at a time; a request for a feed already being
// published is dropped.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"planet/internal/events"
	"planet/internal/feeds"
	"planet/internal/ipfs"
	"planet/internal/ledger"
	"planet/internal/logging"
	"planet/internal/metrics"
	"planet/internal/services"
)

// Adder adds a directory to the daemon and returns its root CID.
type Adder interface {
	AddDirectory(ctx context.Context, dir string) (string, error)
}

// Namer points an IPNS key at a CID.
type Namer interface {
	NamePublish(ctx context.Context, cid, key string) (ipfs.PublishResult, error)
}

// Coordinator publishes local feeds.
type Coordinator struct {
	store   *feeds.Store
	layout  feeds.Layout
	ledger  *ledger.State
	adder   Adder
	namer   Namer
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a publish coordinator.
func New(store *feeds.Store, layout feeds.Layout, state *ledger.State, adder Adder, namer Namer, bus *events.Bus, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		layout:  layout,
		ledger:  state,
		adder:   adder,
		namer:   namer,
		bus:     bus,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "publish"),
		now:     time.Now,
	}
}

// Publish publishes feedID. Feeds without a key and feeds already being
// published return nil without doing anything.
func (c *Coordinator) Publish(ctx context.Context, feedID string) (err error) {
	ctx = services.WithOperation(services.WithFeedID(ctx, feedID), "publish")
	logger := logging.WithContext(ctx, c.logger)

	feed, err := c.store.GetFeed(ctx, feedID)
	if err != nil {
		return err
	}
	if feed == nil {
		return services.Wrap(services.ErrNotFound, "publish", "lookup", "feed "+feedID, nil)
	}
	if !feed.IsLocal() {
		logger.Debug("feed has no key; skipping publish")
		return nil
	}
	release, ok := c.ledger.TryBegin(ledger.Publishing, feed.ID)
	if !ok {
		logger.Debug("publish already in flight; dropping request")
		return nil
	}
	started := c.now()
	defer func() {
		finished := release()
		if markErr := c.store.MarkPublished(context.WithoutCancel(ctx), feed.ID, finished); markErr != nil {
			logger.Debug("record last published failed", logging.Error(markErr))
		}
		c.metrics.Publish(metrics.Result(err), finished.Sub(started))
		if err != nil {
			logging.WarnWithContext(logger, "feed publish failed", "publish_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.String(logging.FieldErrorHint, "check the daemon log and the feed directory"),
				logging.String(logging.FieldImpact, "followers keep the previous version until the next publish"),
			)
		}
	}()

	digest, err := c.rebuildManifest(ctx, feed)
	if err != nil {
		return err
	}

	cid, err := c.adder.AddDirectory(ctx, c.layout.FeedDir(feed.ID))
	if err != nil {
		return services.Wrap(services.ErrContentAdd, "publish", "add", feed.ID, err)
	}
	if cid == "" {
		return services.Wrap(services.ErrContentAdd, "publish", "add", "no cid for "+feed.ID, nil)
	}

	result, err := c.namer.NamePublish(ctx, cid, feed.KeyName)
	if err != nil {
		return fmt.Errorf("name publish: %w", err)
	}

	logger.Info("feed published",
		logging.Address(feed.Address),
		logging.String("cid", cid),
		logging.String("name", result.Name),
		logging.String("digest", digest),
		logging.Duration("elapsed", c.now().Sub(started)),
		logging.String(logging.FieldEventType, "feed_published"),
	)
	c.bus.Publish(events.Event{
		Type:     events.FeedPublished,
		FeedID:   feed.ID,
		FeedName: feed.Name,
		Address:  feed.Address,
		CID:      cid,
		Digest:   digest,
	})
	return nil
}

// rebuildManifest writes feed.json from the stored articles and returns its
// digest.
func (c *Coordinator) rebuildManifest(ctx context.Context, feed *feeds.Feed) (string, error) {
	articles, err := c.store.ListArticles(ctx, feed.ID)
	if err != nil {
		return "", err
	}
	data, err := feeds.BuildManifest(feed, articles, c.now()).Marshal()
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := c.layout.WriteManifest(feed.ID, data); err != nil {
		return "", err
	}
	return feeds.Digest(data), nil
}
