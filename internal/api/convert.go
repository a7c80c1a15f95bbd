package api

import (
	"time"

	"planet/internal/feeds"
	"planet/internal/health"
)

// FromFeed converts a store feed to its API representation. Counts and
// in-flight flags are filled by the caller.
func FromFeed(feed *feeds.Feed) Feed {
	if feed == nil {
		return Feed{}
	}
	dto := Feed{
		ID:          feed.ID,
		Name:        feed.DisplayName(),
		About:       feed.About,
		Address:     feed.Address,
		Local:       feed.IsLocal(),
		Placeholder: feed.IsPlaceholder(),
		CreatedAt:   FormatTime(feed.CreatedAt),
		UpdatedAt:   FormatTime(feed.UpdatedAt),
	}
	if feed.LastPublished != nil {
		dto.LastPublished = FormatTime(*feed.LastPublished)
	}
	if feed.LastUpdated != nil {
		dto.LastUpdated = FormatTime(*feed.LastUpdated)
	}
	return dto
}

// FromArticle converts a store article. withContent controls whether the
// body is copied.
func FromArticle(article *feeds.Article, withContent bool) Article {
	if article == nil {
		return Article{}
	}
	dto := Article{
		ID:        article.ID,
		FeedID:    article.FeedID,
		Title:     article.Title,
		CreatedAt: FormatTime(article.CreatedAt),
		Read:      article.Read,
		Stub:      article.IsStub(),
	}
	if withContent {
		dto.Content = article.Content
	}
	return dto
}

// FromArticles converts a slice of articles without their bodies.
func FromArticles(articles []*feeds.Article) []Article {
	out := make([]Article, 0, len(articles))
	for _, article := range articles {
		out = append(out, FromArticle(article, false))
	}
	return out
}

// FromHealth converts a poller snapshot.
func FromHealth(status health.Status) NodeHealth {
	dto := NodeHealth{
		Online:       status.Online,
		PeerID:       status.Server.PeerID,
		AgentVersion: status.Server.AgentVersion,
		IPFSVersion:  status.Server.IPFSVersion,
		Peers:        status.Server.Peers,
		RepoSize:     status.RepoSize,
		RepoObjects:  status.RepoObjects,
	}
	if !status.CheckedAt.IsZero() {
		dto.CheckedAt = FormatTime(status.CheckedAt)
	}
	if len(status.Bandwidth) > 0 {
		dto.Bandwidth = make([]BandwidthSample, 0, len(status.Bandwidth))
		for _, s := range status.Bandwidth {
			dto.Bandwidth = append(dto.Bandwidth, BandwidthSample{
				Time:     s.Time,
				TotalIn:  s.TotalIn,
				TotalOut: s.TotalOut,
				RateIn:   s.RateIn,
				RateOut:  s.RateOut,
			})
		}
	}
	return dto
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
