// Package normalize turns fetched chapter markup into clean XHTML
// fragments with image references rewritten to archive-local paths.
package normalize

import (
	"fmt"
	"html"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const imageToken = "@@IMAGE "

// ExtractImageURLs lists the illustration URLs embedded in chapter
// markup, in document order, deduplicated.
func ExtractImageURLs(markup string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse chapter markup: %w", err)
	}
	seen := make(map[string]bool)
	urls := make([]string, 0)
	contentRoot(doc).Find("img").Each(func(i int, s *goquery.Selection) {
		url := imageURL(s)
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		urls = append(urls, url)
	})
	return urls, nil
}

// Chapter renders the normalized XHTML fragment for one chapter:
// a heading, one <p> per source paragraph, and <img> tags pointing at
// the local paths in images (remote URL -> archive path). Images whose
// URL is missing from the map (failed fetches) are dropped; the caller
// records the gap. All text is entity-escaped so the fragment stays
// well-formed whatever the source contains.
func Chapter(title, markup string, images map[string]string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("failed to parse chapter markup: %w", err)
	}
	content := contentRoot(doc)
	content.Find("ul, script, style").Remove()

	// Line breaks carry the paragraph structure; make them survive
	// text extraction. Images become tokens resolved below.
	content.Find("br").ReplaceWithHtml("\n")
	content.Find("img").Each(func(i int, s *goquery.Selection) {
		url := imageURL(s)
		if url == "" {
			s.Remove()
			return
		}
		s.ReplaceWithHtml("\n" + html.EscapeString(imageToken+url) + "\n")
	})

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("<h1>%s</h1>\n", html.EscapeString(title)))
	for _, line := range strings.Split(content.Text(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == title {
			continue
		}
		if url, ok := strings.CutPrefix(line, imageToken); ok {
			local, ok := images[url]
			if !ok {
				continue
			}
			builder.WriteString(fmt.Sprintf(`<div class="illustration"><img src="%s" alt="%s"/></div>`,
				html.EscapeString(local), html.EscapeString(path.Base(local))))
			builder.WriteString("\n")
			continue
		}
		builder.WriteString(fmt.Sprintf("<p>%s</p>\n", html.EscapeString(line)))
	}

	return builder.String(), nil
}

// Unavailable renders the degraded fragment for a chapter whose fetch
// permanently failed. The book is still produced around it.
func Unavailable(title string) string {
	return fmt.Sprintf("<h1>%s</h1>\n<p class=\"unavailable\">本章内容暂时无法获取。</p>\n",
		html.EscapeString(title))
}

func contentRoot(doc *goquery.Document) *goquery.Selection {
	content := doc.Find("#content").First()
	if content.Length() == 0 {
		return doc.Find("body")
	}
	return content
}

func imageURL(s *goquery.Selection) string {
	url := s.AttrOr("data-src", "")
	if url == "" {
		url = s.AttrOr("src", "")
	}
	return url
}
