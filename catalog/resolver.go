// Package catalog resolves a novel title against the wenku8 catalog and
// builds the volume/chapter skeleton in reading order.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"wenku8-archiver/fetch"
	"wenku8-archiver/model"
)

var bookIdRegexp = regexp.MustCompile(`/book/(\d+)\.htm`)

type Resolver struct {
	client  *fetch.Client
	baseURL string
}

func NewResolver(client *fetch.Client, baseURL string) *Resolver {
	return &Resolver{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Resolve finds the exact catalog match for a title and returns the
// novel skeleton: volumes and chapters with titles and URLs, cover
// reference, no bodies. Titles are matched case and whitespace
// sensitive; anything but an exact match is fetch.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, title string) (*model.Novel, error) {
	searchURL, err := r.searchURL(title)
	if err != nil {
		return nil, fmt.Errorf("failed to build search url: %w", err)
	}
	html, err := r.client.GetHTML(ctx, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}
	if isLoginWall(doc) {
		return nil, fmt.Errorf("search %q: %w", title, fetch.ErrAuth)
	}

	bookURL := searchURL
	if !isBookPage(doc) {
		// Result list: a single exact match redirects straight to the
		// book page, so here we must find the one link whose text is
		// exactly the requested title.
		href := ""
		doc.Find("a").EachWithBreak(func(i int, s *goquery.Selection) bool {
			if s.Text() == title && bookIdRegexp.MatchString(s.AttrOr("href", "")) {
				href = s.AttrOr("href", "")
				return false
			}
			return true
		})
		if href == "" {
			return nil, fmt.Errorf("resolve %q: %w", title, fetch.ErrNotFound)
		}
		bookURL = r.resolveRef(searchURL, href)
		html, err = r.client.GetHTML(ctx, bookURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get book page: %w", err)
		}
		doc, err = goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("failed to parse book page: %w", err)
		}
	}

	pageTitle := strings.TrimSpace(doc.Find("table b").First().Text())
	if pageTitle != title {
		return nil, fmt.Errorf("resolve %q: catalog has %q: %w", title, pageTitle, fetch.ErrNotFound)
	}

	novel := &model.Novel{Title: title}
	if matches := bookIdRegexp.FindStringSubmatch(bookURL); len(matches) > 1 {
		novel.Id, _ = strconv.Atoi(matches[1])
	}

	doc.Find("td").EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if strings.HasPrefix(text, "小说作者：") {
			novel.Author = strings.TrimSpace(strings.TrimPrefix(text, "小说作者："))
			return false
		}
		return true
	})
	doc.Find("span").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "内容简介：") {
			novel.Synopsis = strings.TrimSpace(s.NextAllFiltered("span").First().Text())
			return false
		}
		return true
	})
	novel.CoverUrl = r.resolveRef(bookURL, doc.Find(`td[width="20%"] img`).First().AttrOr("src", ""))

	indexHref := ""
	doc.Find("a").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "小说目录") {
			indexHref = s.AttrOr("href", "")
			return false
		}
		return true
	})
	if indexHref == "" {
		return nil, fmt.Errorf("resolve %q: no index page link: %w", title, fetch.ErrNotFound)
	}

	volumes, err := r.getVolumes(ctx, r.resolveRef(bookURL, indexHref))
	if err != nil {
		return nil, err
	}
	novel.Volumes = volumes

	return novel, nil
}

// getVolumes parses the index page. Volume header cells (.vcss) open a
// volume; the chapter anchors (.ccss) that follow belong to it. The
// document order of the rows is the reading order.
func (r *Resolver) getVolumes(ctx context.Context, indexURL string) ([]*model.Volume, error) {
	html, err := r.client.GetHTML(ctx, indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get index page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page: %w", err)
	}
	if isLoginWall(doc) {
		return nil, fmt.Errorf("index %s: %w", indexURL, fetch.ErrAuth)
	}

	volumes := make([]*model.Volume, 0)
	doc.Find("td.vcss, td.ccss a").Each(func(i int, s *goquery.Selection) {
		if s.HasClass("vcss") {
			volumes = append(volumes, &model.Volume{
				Title:    strings.TrimSpace(s.Text()),
				Url:      indexURL,
				Chapters: make([]*model.Chapter, 0),
			})
			return
		}
		if len(volumes) == 0 {
			return
		}
		href := s.AttrOr("href", "")
		chapterTitle := strings.TrimSpace(s.Text())
		if href == "" || chapterTitle == "" {
			return
		}
		current := volumes[len(volumes)-1]
		current.Chapters = append(current.Chapters, &model.Chapter{
			Title: chapterTitle,
			Url:   r.resolveRef(indexURL, href),
		})
	})
	if len(volumes) == 0 {
		return nil, fmt.Errorf("index %s: no volumes: %w", indexURL, fetch.ErrNotFound)
	}

	return volumes, nil
}

func (r *Resolver) searchURL(title string) (string, error) {
	// The search endpoint expects the query percent-encoded in the
	// site's own GBK encoding, not UTF-8.
	encoded, err := fetch.EncodeGB18030(title)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/modules/article/search.php?searchtype=articlename&searchkey=%s",
		r.baseURL, url.QueryEscape(string(encoded))), nil
}

func (r *Resolver) resolveRef(pageURL, href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func isBookPage(doc *goquery.Document) bool {
	found := false
	doc.Find("td").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "小说作者：") {
			found = true
			return false
		}
		return true
	})
	return found
}

func isLoginWall(doc *goquery.Document) bool {
	return doc.Find(`input[name="username"]`).Length() > 0
}
