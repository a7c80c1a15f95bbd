package feeds

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"

	"planet/internal/services"
)

// ManifestFile is the manifest file name at the root of a feed directory.
const ManifestFile = "feed.json"

// Manifest is the feed.json document published at the root of a feed.
type Manifest struct {
	ID       string            `json:"id"`
	IPNS     string            `json:"ipns"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Name     string            `json:"name"`
	About    string            `json:"about"`
	Articles []ManifestArticle `json:"articles"`
}

// ManifestArticle is the per-article stub listed in a manifest.
type ManifestArticle struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Title   string    `json:"title"`
}

// BuildManifest snapshots feed and its articles. The returned manifest owns its
// article slice, so later store changes do not affect it.
func BuildManifest(feed *Feed, articles []*Article, updated time.Time) Manifest {
	stubs := make([]ManifestArticle, 0, len(articles))
	for _, article := range articles {
		if article == nil {
			continue
		}
		stubs = append(stubs, ManifestArticle{
			ID:      article.ID,
			Created: article.CreatedAt.UTC(),
			Title:   article.Title,
		})
	}
	return Manifest{
		ID:       feed.ID,
		IPNS:     feed.Address,
		Created:  feed.CreatedAt.UTC(),
		Updated:  updated.UTC(),
		Name:     feed.Name,
		About:    feed.About,
		Articles: stubs,
	}
}

// Marshal encodes the manifest as indented JSON with RFC 3339 timestamps.
func (m Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ArticleIDs returns the ids listed in the manifest in document order.
func (m Manifest) ArticleIDs() []string {
	ids := make([]string, 0, len(m.Articles))
	for _, article := range m.Articles {
		ids = append(ids, article.ID)
	}
	return ids
}

// ParseManifest decodes a remote feed.json. Feed and article ids must be
// hyphenated UUIDs since they become directory names. Text fields are
// NFC-normalized so names compare equal regardless of the publisher's platform.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, services.Wrap(services.ErrDecode, "feeds", "parse manifest", "invalid feed.json", err)
	}
	if strings.TrimSpace(m.ID) == "" {
		return Manifest{}, services.Wrap(services.ErrDecode, "feeds", "parse manifest", "feed.json has no id", nil)
	}
	if !isUUID(m.ID) {
		return Manifest{}, services.Wrap(services.ErrDecode, "feeds", "parse manifest",
			fmt.Sprintf("feed id %q is not a UUID", m.ID), nil)
	}
	for _, article := range m.Articles {
		if !isUUID(article.ID) {
			return Manifest{}, services.Wrap(services.ErrDecode, "feeds", "parse manifest",
				fmt.Sprintf("article id %q is not a UUID", article.ID), nil)
		}
	}
	m.Name = normalizeText(m.Name)
	m.About = normalizeText(m.About)
	for i := range m.Articles {
		m.Articles[i].Title = normalizeText(m.Articles[i].Title)
	}
	return m, nil
}

// Digest returns the hex blake3 digest of an encoded manifest.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// isUUID accepts only the 36-character form; uuid.Parse alone also takes
// the braced and urn variants.
func isUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func normalizeText(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
