package testsupport

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"planet/internal/config"
	"planet/internal/feeds"
)

// MustOpenStore opens a feeds.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *feeds.Store {
	t.Helper()

	store, err := feeds.Open(cfg)
	if err != nil {
		t.Fatalf("feeds.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Address returns a syntactically valid IPNS name derived from seed.
func Address(seed string) string {
	body := strings.ToLower(fmt.Sprintf("%x", seed))
	addr := "k51" + body
	for len(addr) < feeds.AddressLength {
		addr += "0"
	}
	return addr[:feeds.AddressLength]
}

// NewLocalFeed inserts a local feed with its directory created.
func NewLocalFeed(t testing.TB, store *feeds.Store, layout feeds.Layout, name string) *feeds.Feed {
	t.Helper()

	feed := &feeds.Feed{Name: name, KeyName: "key-" + name, Address: Address("local-" + name)}
	if err := store.CreateFeed(context.Background(), feed); err != nil {
		t.Fatalf("store.CreateFeed: %v", err)
	}
	if err := layout.EnsureFeedDir(feed.ID); err != nil {
		t.Fatalf("EnsureFeedDir: %v", err)
	}
	return feed
}

// NewFollowedFeed inserts a followed feed. An empty name creates a placeholder.
func NewFollowedFeed(t testing.TB, store *feeds.Store, name, address string) *feeds.Feed {
	t.Helper()

	feed := &feeds.Feed{Name: name, Address: address}
	if err := store.CreateFeed(context.Background(), feed); err != nil {
		t.Fatalf("store.CreateFeed: %v", err)
	}
	return feed
}

// NewArticle inserts an article into feed.
func NewArticle(t testing.TB, store *feeds.Store, feedID, title string) *feeds.Article {
	t.Helper()

	article := &feeds.Article{FeedID: feedID, Title: title, Content: "# " + title}
	if err := store.CreateArticle(context.Background(), article); err != nil {
		t.Fatalf("store.CreateArticle: %v", err)
	}
	return article
}
