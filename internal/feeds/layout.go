package feeds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"planet/internal/fileutil"
	"planet/internal/services"
)

const (
	// AvatarFile is the optional feed image at the root of a feed directory.
	AvatarFile = "avatar.png"
	// IndexFile is the rendered page of an article.
	IndexFile = "index.html"
	// ArticleFile is the JSON document of an article.
	ArticleFile = "article.json"
)

// Layout resolves paths below the planets directory.
type Layout struct {
	root string
}

// NewLayout returns a layout rooted at root (normally <base>/planets).
func NewLayout(root string) Layout {
	return Layout{root: root}
}

// Root returns the planets directory.
func (l Layout) Root() string { return l.root }

// FeedDir returns the content directory of a feed.
func (l Layout) FeedDir(feedID string) string {
	return filepath.Join(l.root, feedID)
}

// ManifestPath returns the feed.json location of a feed.
func (l Layout) ManifestPath(feedID string) string {
	return filepath.Join(l.FeedDir(feedID), ManifestFile)
}

// AvatarPath returns the avatar.png location of a feed.
func (l Layout) AvatarPath(feedID string) string {
	return filepath.Join(l.FeedDir(feedID), AvatarFile)
}

// ArticleDir returns the directory of one article.
func (l Layout) ArticleDir(feedID, articleID string) string {
	return filepath.Join(l.FeedDir(feedID), articleID)
}

// ArticleIndexPath returns the rendered page of an article.
func (l Layout) ArticleIndexPath(feedID, articleID string) string {
	return filepath.Join(l.ArticleDir(feedID, articleID), IndexFile)
}

// ArticleJSONPath returns the article.json location of an article.
func (l Layout) ArticleJSONPath(feedID, articleID string) string {
	return filepath.Join(l.ArticleDir(feedID, articleID), ArticleFile)
}

// checkSegment rejects ids that would not name a single entry directly below
// their parent directory.
func checkSegment(kind, id string) error {
	switch {
	case id == "", id == ".", id == "..":
	case strings.ContainsAny(id, `/\`+"\x00"):
	default:
		return nil
	}
	return services.Wrap(services.ErrValidation, "feeds", "layout", fmt.Sprintf("invalid %s id %q", kind, id), nil)
}

// EnsureFeedDir creates the feed directory.
func (l Layout) EnsureFeedDir(feedID string) error {
	if err := checkSegment("feed", feedID); err != nil {
		return err
	}
	if err := os.MkdirAll(l.FeedDir(feedID), 0o755); err != nil {
		return fmt.Errorf("create feed dir: %w", err)
	}
	return nil
}

// RemoveFeedDir deletes the feed directory and everything below it.
func (l Layout) RemoveFeedDir(feedID string) error {
	if err := checkSegment("feed", feedID); err != nil {
		return err
	}
	if err := os.RemoveAll(l.FeedDir(feedID)); err != nil {
		return fmt.Errorf("remove feed dir: %w", err)
	}
	return nil
}

// RemoveArticleDir deletes the directory of one article.
func (l Layout) RemoveArticleDir(feedID, articleID string) error {
	if err := checkSegment("feed", feedID); err != nil {
		return err
	}
	if err := checkSegment("article", articleID); err != nil {
		return err
	}
	if err := os.RemoveAll(l.ArticleDir(feedID, articleID)); err != nil {
		return fmt.Errorf("remove article dir: %w", err)
	}
	return nil
}

// WriteManifest replaces feed.json in an existing feed directory.
func (l Layout) WriteManifest(feedID string, data []byte) error {
	if err := checkSegment("feed", feedID); err != nil {
		return err
	}
	dir := l.FeedDir(feedID)
	if !fileutil.IsDir(dir) {
		return services.Wrap(services.ErrDirectoryMissing, "feeds", "write manifest", dir, nil)
	}
	path := l.ManifestPath(feedID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove previous manifest: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

// WriteAvatar replaces avatar.png, creating the feed directory when needed.
func (l Layout) WriteAvatar(feedID string, data []byte) error {
	if err := l.EnsureFeedDir(feedID); err != nil {
		return err
	}
	path := l.AvatarPath(feedID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove previous avatar: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}
