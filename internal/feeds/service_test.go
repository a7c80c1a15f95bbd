package feeds_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"planet/internal/feeds"
	"planet/internal/ipfs"
	"planet/internal/logging"
	"planet/internal/services"
	"planet/internal/testsupport"
)

type fakeKeys struct {
	mu      sync.Mutex
	keys    []ipfs.Key
	gens    int
	removed []string
	listErr error
}

func (f *fakeKeys) KeyList(context.Context) ([]ipfs.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ipfs.Key(nil), f.keys...), f.listErr
}

func (f *fakeKeys) KeyGen(_ context.Context, name string) (ipfs.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gens++
	key := ipfs.Key{Name: name, ID: testsupport.Address(name)}
	f.keys = append(f.keys, key)
	return key, nil
}

func (f *fakeKeys) KeyRemove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	return nil
}

type fakeGateway struct {
	reachable map[string]bool
}

func (g fakeGateway) Reachable(_ context.Context, path string) bool { return g.reachable[path] }

func (g fakeGateway) URL(path string) string { return "http://127.0.0.1:18181" + path }

func newService(t *testing.T, gw feeds.GatewayProber) (*feeds.Service, *fakeKeys) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	keys := &fakeKeys{}
	svc := feeds.NewService(store, feeds.NewLayout(cfg.FeedsDir()), keys, gw, nil, logging.NewNop())
	return svc, keys
}

func TestServiceCreateFeedGeneratesKey(t *testing.T) {
	svc, keys := newService(t, nil)
	ctx := context.Background()

	feed, err := svc.CreateFeed(ctx, "  Notes ", "about")
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}
	if feed.Name != "Notes" || feed.KeyName != feed.ID {
		t.Fatalf("unexpected feed %+v", feed)
	}
	if feed.Address != testsupport.Address(feed.ID) {
		t.Fatalf("address %q does not come from key", feed.Address)
	}
	if keys.gens != 1 {
		t.Fatalf("expected one key generation, got %d", keys.gens)
	}
	if _, err := os.Stat(svc.Layout().FeedDir(feed.ID)); err != nil {
		t.Fatalf("feed dir missing: %v", err)
	}
}

func TestServiceCreateFeedRequiresName(t *testing.T) {
	svc, keys := newService(t, nil)
	if _, err := svc.CreateFeed(context.Background(), " ", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if keys.gens != 0 {
		t.Fatal("no key should be generated for an invalid feed")
	}
}

func TestServiceDeleteFeedRemovesKeyAndDirectory(t *testing.T) {
	svc, keys := newService(t, nil)
	ctx := context.Background()
	feed, err := svc.CreateFeed(ctx, "Notes", "")
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}

	if err := svc.DeleteFeed(ctx, feed.ID); err != nil {
		t.Fatalf("DeleteFeed: %v", err)
	}
	if len(keys.removed) != 1 || keys.removed[0] != feed.KeyName {
		t.Fatalf("unexpected removed keys %v", keys.removed)
	}
	if _, err := os.Stat(svc.Layout().FeedDir(feed.ID)); !os.IsNotExist(err) {
		t.Fatalf("expected feed dir removed, err=%v", err)
	}
	if err := svc.DeleteFeed(ctx, feed.ID); !feeds.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestServiceAddArticleRendersAndResolvesFileURL(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	feed, err := svc.CreateFeed(ctx, "Notes", "")
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}

	article, err := svc.AddArticle(ctx, feed.ID, "First", "hello")
	if err != nil {
		t.Fatalf("AddArticle: %v", err)
	}
	if _, err := os.Stat(svc.Layout().ArticleIndexPath(feed.ID, article.ID)); err != nil {
		t.Fatalf("index.html missing: %v", err)
	}

	url, err := svc.ArticleURL(ctx, feed.ID, article.ID)
	if err != nil {
		t.Fatalf("ArticleURL: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, article.ID+"/index.html") {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestServiceArticleURLForFollowedFeedUsesGateway(t *testing.T) {
	addr := testsupport.Address("followed")
	gw := fakeGateway{reachable: map[string]bool{}}
	svc, _ := newService(t, gw)
	ctx := context.Background()

	feed := testsupport.NewFollowedFeed(t, svc.Store(), "Remote", addr)
	article := testsupport.NewArticle(t, svc.Store(), feed.ID, "stub")

	if _, err := svc.ArticleURL(ctx, feed.ID, article.ID); !feeds.IsNotFound(err) {
		t.Fatalf("expected not found while gateway does not serve the page, got %v", err)
	}

	path := ipfs.NamePath(addr, article.ID+"/index.html")
	gw.reachable[path] = true
	url, err := svc.ArticleURL(ctx, feed.ID, article.ID)
	if err != nil {
		t.Fatalf("ArticleURL: %v", err)
	}
	if url != "http://127.0.0.1:18181"+path {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestServiceAddArticleRejectsFollowedFeed(t *testing.T) {
	svc, _ := newService(t, nil)
	feed := testsupport.NewFollowedFeed(t, svc.Store(), "Remote", testsupport.Address("ro"))
	if _, err := svc.AddArticle(context.Background(), feed.ID, "t", "c"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
