package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"planet/internal/api"
	"planet/internal/feeds"
	"planet/internal/logging"
	"planet/internal/testsupport"
)

func newTestServer(t *testing.T, token string) (*apiServer, *Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken(token))
	cfg.Metrics.Enabled = true
	store := testsupport.MustOpenStore(t, cfg)
	d, err := New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d.apiServer, d
}

func serve(t *testing.T, srv *apiServer, token, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)
	return w
}

func TestAPIServerRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	if w := serve(t, srv, "", "/api/status"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	} else if !strings.HasPrefix(w.Header().Get("WWW-Authenticate"), "Bearer") {
		t.Fatalf("expected bearer challenge, got %q", w.Header().Get("WWW-Authenticate"))
	}
	if w := serve(t, srv, "", "/api/feeds/unknown"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected nested routes to require the token, got %d", w.Code)
	}
	if w := serve(t, srv, "wrong", "/api/status"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", w.Code)
	}
	w := serve(t, srv, "secret", "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon not running before Start")
	}
	if status.Node.State != "uninitialized" {
		t.Fatalf("unexpected node state %q", status.Node.State)
	}
}

func TestAPIServerHandleFeeds(t *testing.T) {
	srv, d := newTestServer(t, "")
	layout := feeds.NewLayout(d.cfg.FeedsDir())
	local := testsupport.NewLocalFeed(t, d.store, layout, "notes")
	testsupport.NewFollowedFeed(t, d.store, "Friend", testsupport.Address("friend"))

	w := serve(t, srv, "", "/api/feeds")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.FeedListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(resp.Feeds))
	}

	w = serve(t, srv, "", "/api/feeds?kind=local")
	resp = api.FeedListResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Feeds) != 1 || resp.Feeds[0].ID != local.ID {
		t.Fatalf("expected only the local feed, got %#v", resp.Feeds)
	}
}

func TestAPIServerHandleFeedDetailAndArticleURL(t *testing.T) {
	srv, d := newTestServer(t, "")
	layout := feeds.NewLayout(d.cfg.FeedsDir())
	local := testsupport.NewLocalFeed(t, d.store, layout, "notes")
	article := testsupport.NewArticle(t, d.store, local.ID, "First")

	w := serve(t, srv, "", "/api/feeds/"+local.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var detail api.FeedDetail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if len(detail.Articles) != 1 || detail.Articles[0].Title != "First" {
		t.Fatalf("unexpected detail %#v", detail)
	}

	w = serve(t, srv, "", "/api/feeds/"+local.ID+"/articles/"+article.ID+"/url")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK for article url, got %d: %s", w.Code, w.Body.String())
	}
	var link api.ArticleURLResponse
	if err := json.Unmarshal(w.Body.Bytes(), &link); err != nil {
		t.Fatalf("decode url: %v", err)
	}
	if !strings.HasPrefix(link.URL, "file://") || !strings.HasSuffix(link.URL, "/index.html") {
		t.Fatalf("unexpected article url %q", link.URL)
	}

	if w := serve(t, srv, "", "/api/feeds/missing"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing feed, got %d", w.Code)
	}
	if w := serve(t, srv, "", "/api/feeds/"+local.ID+"/articles/missing/url"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing article, got %d", w.Code)
	}
}

func TestAPIServerMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	w := serve(t, srv, "", "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "planet_daemon_online") {
		t.Fatalf("expected planet metrics in output")
	}
}
