package feeds_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"planet/internal/feeds"
	"planet/internal/testsupport"
)

func TestStoreCreateAndListByKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	layout := feeds.NewLayout(cfg.FeedsDir())
	ctx := context.Background()

	local := testsupport.NewLocalFeed(t, store, layout, "notes")
	followed := testsupport.NewFollowedFeed(t, store, "", testsupport.Address("remote"))

	if !local.IsLocal() || followed.IsLocal() {
		t.Fatalf("unexpected locality local=%v followed=%v", local.IsLocal(), followed.IsLocal())
	}
	if !followed.IsPlaceholder() {
		t.Fatal("expected followed feed without name to be a placeholder")
	}

	all, err := store.ListFeeds(ctx, feeds.KindAll)
	if err != nil {
		t.Fatalf("ListFeeds: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(all))
	}
	locals, err := store.ListFeeds(ctx, feeds.KindLocal)
	if err != nil {
		t.Fatalf("ListFeeds local: %v", err)
	}
	if len(locals) != 1 || locals[0].ID != local.ID {
		t.Fatalf("unexpected local feeds %+v", locals)
	}
	followedList, err := store.ListFeeds(ctx, feeds.KindFollowed)
	if err != nil {
		t.Fatalf("ListFeeds followed: %v", err)
	}
	if len(followedList) != 1 || followedList[0].ID != followed.ID {
		t.Fatalf("unexpected followed feeds %+v", followedList)
	}

	addrs, err := store.LocalAddresses(ctx)
	if err != nil {
		t.Fatalf("LocalAddresses: %v", err)
	}
	if _, ok := addrs[local.Address]; !ok || len(addrs) != 1 {
		t.Fatalf("unexpected local addresses %v", addrs)
	}
}

func TestStoreRejectsDuplicateAddress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	addr := testsupport.Address("dup")

	testsupport.NewFollowedFeed(t, store, "", addr)
	if err := store.CreateFeed(context.Background(), &feeds.Feed{Address: addr}); err == nil {
		t.Fatal("expected unique address violation")
	}
}

func TestStoreLocalAndFollowedMayShareAddress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	layout := feeds.NewLayout(cfg.FeedsDir())
	ctx := context.Background()

	local := testsupport.NewLocalFeed(t, store, layout, "mine")
	followed := testsupport.NewFollowedFeed(t, store, "", local.Address)

	got, err := store.FindByAddress(ctx, local.Address, feeds.KindAll)
	if err != nil {
		t.Fatalf("FindByAddress: %v", err)
	}
	if got == nil || got.ID != local.ID {
		t.Fatalf("expected local feed first, got %+v", got)
	}
	got, err = store.FindByAddress(ctx, local.Address, feeds.KindFollowed)
	if err != nil {
		t.Fatalf("FindByAddress followed: %v", err)
	}
	if got == nil || got.ID != followed.ID {
		t.Fatalf("expected followed feed, got %+v", got)
	}
}

func TestStoreDeleteCascadesArticles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	layout := feeds.NewLayout(cfg.FeedsDir())
	ctx := context.Background()

	feed := testsupport.NewLocalFeed(t, store, layout, "cascade")
	testsupport.NewArticle(t, store, feed.ID, "one")
	testsupport.NewArticle(t, store, feed.ID, "two")

	if err := store.DeleteFeed(ctx, feed.ID); err != nil {
		t.Fatalf("DeleteFeed: %v", err)
	}
	ids, err := store.ArticleIDs(ctx, feed.ID)
	if err != nil {
		t.Fatalf("ArticleIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected articles removed with feed, got %d", len(ids))
	}
	got, err := store.GetFeed(ctx, feed.ID)
	if err != nil || got != nil {
		t.Fatalf("GetFeed after delete = %+v, %v", got, err)
	}
}

func TestStoreReplaceFeedSwapsPlaceholder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	addr := testsupport.Address("swap")

	placeholder := testsupport.NewFollowedFeed(t, store, "", addr)
	replacement := &feeds.Feed{ID: "3b241101-e2bb-4255-8caf-4136c566a962", Name: "Remote", About: "hi", Address: addr}
	if err := store.ReplaceFeed(ctx, placeholder.ID, replacement); err != nil {
		t.Fatalf("ReplaceFeed: %v", err)
	}
	if got, _ := store.GetFeed(ctx, placeholder.ID); got != nil {
		t.Fatal("expected placeholder removed")
	}
	got, err := store.FindByAddress(ctx, addr, feeds.KindFollowed)
	if err != nil {
		t.Fatalf("FindByAddress: %v", err)
	}
	if got == nil || got.ID != replacement.ID || got.Name != "Remote" {
		t.Fatalf("unexpected replacement %+v", got)
	}
}

func TestStoreArticleLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	feed := testsupport.NewFollowedFeed(t, store, "Remote", testsupport.Address("articles"))
	older := &feeds.Article{FeedID: feed.ID, Title: "older", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &feeds.Article{FeedID: feed.ID, Title: "newer"}
	for _, a := range []*feeds.Article{older, newer} {
		if err := store.CreateArticle(ctx, a); err != nil {
			t.Fatalf("CreateArticle: %v", err)
		}
	}

	list, err := store.ListArticles(ctx, feed.ID)
	if err != nil {
		t.Fatalf("ListArticles: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if !list[0].IsStub() {
		t.Fatal("expected empty content to be a stub")
	}

	if err := store.SetArticleContent(ctx, feed.ID, older.ID, "body"); err != nil {
		t.Fatalf("SetArticleContent: %v", err)
	}
	if err := store.MarkRead(ctx, feed.ID, older.ID, true); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	got, err := store.GetArticle(ctx, feed.ID, older.ID)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if got.Content != "body" || !got.Read {
		t.Fatalf("unexpected article %+v", got)
	}

	total, unread, err := store.CountArticles(ctx, feed.ID)
	if err != nil {
		t.Fatalf("CountArticles: %v", err)
	}
	if total != 2 || unread != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", total, unread)
	}

	if err := store.SetArticleContent(ctx, feed.ID, "missing", "x"); err == nil {
		t.Fatal("expected error for missing article")
	}
}

func TestStoreMarkPublishedAndUpdated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	layout := feeds.NewLayout(cfg.FeedsDir())
	ctx := context.Background()

	feed := testsupport.NewLocalFeed(t, store, layout, "times")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.MarkPublished(ctx, feed.ID, at); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	if err := store.MarkUpdated(ctx, feed.ID, at.Add(time.Minute)); err != nil {
		t.Fatalf("MarkUpdated: %v", err)
	}
	got, err := store.GetFeed(ctx, feed.ID)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if got.LastPublished == nil || !got.LastPublished.Equal(at) {
		t.Fatalf("unexpected last published %v", got.LastPublished)
	}
	if got.LastUpdated == nil || !got.LastUpdated.Equal(at.Add(time.Minute)) {
		t.Fatalf("unexpected last updated %v", got.LastUpdated)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := feeds.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := raw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	bumpSchemaVersion(t, cfg.DatabasePath())
	if _, err := feeds.Open(cfg); !errors.Is(err, feeds.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestOpenMigratesOlderSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := feeds.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := cfg.DatabasePath()
	setSchemaVersion(t, path, 1)
	if indexExists(t, path, "idx_articles_unread") {
		t.Fatal("expected unread index to be dropped before reopening")
	}

	store, err = feeds.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := schemaVersionOf(t, path); got != feeds.SchemaVersion {
		t.Fatalf("expected version %d after migration, got %d", feeds.SchemaVersion, got)
	}
	if !indexExists(t, path, "idx_articles_unread") {
		t.Fatal("expected migration to create the unread index")
	}
}
