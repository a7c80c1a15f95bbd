package feeds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"planet/internal/fileutil"
)

// Renderer writes the static files of one article into dir.
type Renderer interface {
	Render(feed *Feed, article *Article, dir string) error
}

// ArticleDocument is the article.json written next to a rendered page.
type ArticleDocument struct {
	ID      string    `json:"id"`
	FeedID  string    `json:"planetID"`
	Created time.Time `json:"created"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
}

// ParseArticleDocument decodes an article.json fetched from a gateway.
func ParseArticleDocument(data []byte) (ArticleDocument, error) {
	var doc ArticleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ArticleDocument{}, err
	}
	doc.Title = normalizeText(doc.Title)
	return doc, nil
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.DefinitionList,
			),
		)
	})
	return markdownInstance
}

var pageTemplate = template.Must(template.New("article").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<header><p>{{.FeedName}}</p><h1>{{.Title}}</h1><time>{{.Created}}</time></header>
<main>{{.Body}}</main>
</body>
</html>
`))

// MarkdownRenderer renders article content as Markdown into index.html and
// writes article.json.
type MarkdownRenderer struct{}

// Render implements Renderer.
func (MarkdownRenderer) Render(feed *Feed, article *Article, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create article dir: %w", err)
	}

	var body bytes.Buffer
	if err := markdown().Convert([]byte(article.Content), &body); err != nil {
		return fmt.Errorf("convert markdown: %w", err)
	}
	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title    string
		FeedName string
		Created  string
		Body     template.HTML
	}{
		Title:    article.Title,
		FeedName: feed.DisplayName(),
		Created:  article.CreatedAt.UTC().Format(time.RFC3339),
		Body:     template.HTML(body.String()),
	})
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, IndexFile), page.Bytes(), 0o644); err != nil {
		return err
	}

	doc, err := json.MarshalIndent(ArticleDocument{
		ID:      article.ID,
		FeedID:  article.FeedID,
		Created: article.CreatedAt.UTC(),
		Title:   article.Title,
		Content: article.Content,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode article.json: %w", err)
	}
	return fileutil.WriteFileAtomic(filepath.Join(dir, ArticleFile), doc, 0o644)
}
