package feeds_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"planet/internal/feeds"
	"planet/internal/services"
)

func TestLayoutPaths(t *testing.T) {
	layout := feeds.NewLayout("/data/planets")
	if got := layout.ManifestPath("f"); got != "/data/planets/f/feed.json" {
		t.Fatalf("ManifestPath = %q", got)
	}
	if got := layout.ArticleIndexPath("f", "a"); got != "/data/planets/f/a/index.html" {
		t.Fatalf("ArticleIndexPath = %q", got)
	}
	if got := layout.ArticleJSONPath("f", "a"); got != "/data/planets/f/a/article.json" {
		t.Fatalf("ArticleJSONPath = %q", got)
	}
}

func TestWriteManifestRequiresFeedDir(t *testing.T) {
	layout := feeds.NewLayout(t.TempDir())
	err := layout.WriteManifest("missing", []byte("{}"))
	if !errors.Is(err, services.ErrDirectoryMissing) {
		t.Fatalf("expected directory missing, got %v", err)
	}
}

func TestWriteManifestReplacesPrevious(t *testing.T) {
	layout := feeds.NewLayout(t.TempDir())
	if err := layout.EnsureFeedDir("f"); err != nil {
		t.Fatalf("EnsureFeedDir: %v", err)
	}
	for _, body := range []string{"first", "second"} {
		if err := layout.WriteManifest("f", []byte(body)); err != nil {
			t.Fatalf("WriteManifest: %v", err)
		}
	}
	data, err := os.ReadFile(layout.ManifestPath("f"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("manifest = %q", data)
	}
}

func TestWriteAvatarCreatesDirectory(t *testing.T) {
	layout := feeds.NewLayout(t.TempDir())
	if err := layout.WriteAvatar("f", []byte("png")); err != nil {
		t.Fatalf("WriteAvatar: %v", err)
	}
	if _, err := os.Stat(layout.AvatarPath("f")); err != nil {
		t.Fatalf("avatar missing: %v", err)
	}
}

func TestRemoveFeedDirRefusesRoot(t *testing.T) {
	root := t.TempDir()
	layout := feeds.NewLayout(root)
	if err := layout.RemoveFeedDir(""); err == nil {
		t.Fatal("expected refusal for empty id")
	}
	if err := layout.EnsureFeedDir("f"); err != nil {
		t.Fatal(err)
	}
	if err := layout.RemoveFeedDir("f"); err != nil {
		t.Fatalf("RemoveFeedDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "f")); !os.IsNotExist(err) {
		t.Fatalf("expected feed dir removed, stat err=%v", err)
	}
}

func TestLayoutRejectsUnsafeIDs(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "planets")
	layout := feeds.NewLayout(root)
	if err := layout.EnsureFeedDir("keep"); err != nil {
		t.Fatalf("EnsureFeedDir: %v", err)
	}

	for _, id := range []string{"", ".", "..", "../escaped", "a/b", `a\b`} {
		if err := layout.RemoveFeedDir(id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("RemoveFeedDir(%q) = %v, want validation error", id, err)
		}
		if err := layout.WriteAvatar(id, []byte("png")); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("WriteAvatar(%q) = %v, want validation error", id, err)
		}
		if err := layout.WriteManifest(id, []byte("{}")); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("WriteManifest(%q) = %v, want validation error", id, err)
		}
		if err := layout.RemoveArticleDir("keep", id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("RemoveArticleDir(keep, %q) = %v, want validation error", id, err)
		}
	}

	if _, err := os.Stat(filepath.Join(root, "keep")); err != nil {
		t.Fatalf("feed dir should survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "escaped")); !os.IsNotExist(err) {
		t.Fatalf("nothing may be written outside the planets root, stat err=%v", err)
	}
}
