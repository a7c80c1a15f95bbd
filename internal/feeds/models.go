package feeds

import (
	"strings"
	"time"
)

// Feed is either a locally owned feed (KeyName set) or a followed remote feed.
type Feed struct {
	ID            string
	Name          string
	About         string
	KeyName       string
	Address       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastPublished *time.Time
	LastUpdated   *time.Time
}

// IsLocal reports whether the feed is published from this node.
func (f *Feed) IsLocal() bool {
	return f != nil && f.KeyName != ""
}

// IsPlaceholder reports whether a followed feed has not yet been filled from
// its remote manifest.
func (f *Feed) IsPlaceholder() bool {
	return f != nil && !f.IsLocal() && f.Name == ""
}

// DisplayName returns the name, falling back to the address for placeholders.
func (f *Feed) DisplayName() string {
	if f == nil {
		return ""
	}
	if f.Name != "" {
		return f.Name
	}
	return f.Address
}

// Article belongs to exactly one feed. Articles of followed feeds start as
// stubs with empty Content until fetched.
type Article struct {
	ID        string
	FeedID    string
	Title     string
	Content   string
	CreatedAt time.Time
	Read      bool
}

// IsStub reports whether the article body has not been fetched yet.
func (a *Article) IsStub() bool {
	return a != nil && a.Content == ""
}

// Kind selects local or followed feeds in list queries.
type Kind int

const (
	// KindAll lists every feed.
	KindAll Kind = iota
	// KindLocal lists feeds published from this node.
	KindLocal
	// KindFollowed lists remote feeds.
	KindFollowed
)

// ParseKind maps "local" and "followed" to their kinds; anything else lists all feeds.
func ParseKind(value string) Kind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "local":
		return KindLocal
	case "followed":
		return KindFollowed
	default:
		return KindAll
	}
}
