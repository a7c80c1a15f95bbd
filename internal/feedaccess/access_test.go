package feedaccess_test

import (
	"context"
	"errors"
	"testing"

	"planet/internal/feedaccess"
	"planet/internal/feeds"
	"planet/internal/ipc"
	"planet/internal/testsupport"
)

func TestOpenWithFallbackUsesStoreWhenDaemonOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seed := testsupport.MustOpenStore(t, cfg)
	layout := feeds.NewLayout(cfg.FeedsDir())
	local := testsupport.NewLocalFeed(t, seed, layout, "Journal")
	testsupport.NewArticle(t, seed, local.ID, "Hello")
	testsupport.NewFollowedFeed(t, seed, "Friend", testsupport.Address("friend"))

	session, err := feedaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return nil, errors.New("daemon offline") },
		func() (*feeds.Store, error) { return feeds.Open(cfg) },
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()

	if session.Access.Live() {
		t.Fatal("expected store-backed access")
	}
	ctx := context.Background()
	localOnly, err := session.Access.List(ctx, "local")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(localOnly) != 1 || localOnly[0].ID != local.ID || localOnly[0].Articles != 1 {
		t.Fatalf("unexpected local feeds: %#v", localOnly)
	}

	detail, err := session.Access.Describe(ctx, local.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if detail == nil || len(detail.Articles) != 1 || detail.Articles[0].Title != "Hello" {
		t.Fatalf("unexpected detail: %#v", detail)
	}

	missing, err := session.Access.Describe(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil detail for unknown feed, got %#v err=%v", missing, err)
	}
}

func TestOpenWithFallbackRequiresStoreOpener(t *testing.T) {
	_, err := feedaccess.OpenWithFallback(nil, nil)
	if err == nil {
		t.Fatal("expected error without any opener")
	}
}
