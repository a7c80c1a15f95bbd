package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"planet/internal/api"
)

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%s %s", humanize.Comma(int64(n)), plural)
}

func feedKindLabel(feed api.Feed) string {
	if feed.Local {
		return "local"
	}
	if feed.Placeholder {
		return "followed (pending)"
	}
	return "followed"
}

func feedActivity(feed api.Feed) string {
	switch {
	case feed.Publishing:
		return "publishing"
	case feed.Updating:
		return "updating"
	case feed.Local:
		return "published " + relativeTime(feed.LastPublished)
	default:
		return "updated " + relativeTime(feed.LastUpdated)
	}
}

func buildFeedListRows(items []api.Feed) [][]string {
	rows := make([][]string, 0, len(items))
	for _, feed := range items {
		name := strings.TrimSpace(feed.Name)
		if name == "" {
			name = "(unnamed)"
		}
		rows = append(rows, []string{
			feed.ID,
			name,
			feedKindLabel(feed),
			fmt.Sprintf("%d", feed.Articles),
			fmt.Sprintf("%d", feed.Unread),
			feedActivity(feed),
		})
	}
	return rows
}

func buildArticleRows(items []api.Article) [][]string {
	rows := make([][]string, 0, len(items))
	for _, article := range items {
		state := "read"
		switch {
		case article.Stub:
			state = "stub"
		case !article.Read:
			state = "unread"
		}
		rows = append(rows, []string{
			article.ID,
			article.Title,
			state,
			relativeTime(article.CreatedAt),
		})
	}
	return rows
}
