// Package pipeline runs the retrieval-and-assembly flow: resolve each
// title, fetch chapters and illustrations through the incremental
// store, normalize, and package the EPUB. Novels are processed
// strictly sequentially; fetches within one novel share a bounded
// worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"wenku8-archiver/catalog"
	"wenku8-archiver/config"
	"wenku8-archiver/epub"
	"wenku8-archiver/fetch"
	"wenku8-archiver/model"
	"wenku8-archiver/normalize"
	"wenku8-archiver/session"
	"wenku8-archiver/store"
	"wenku8-archiver/utils"
)

var chapterHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.7",
}

// Summary is the per-novel outcome report for one batch run.
type Summary struct {
	Novels []NovelResult
}

// Failed reports whether any novel failed completely (no archive was
// produced). Degraded novels with placeholders still count as success.
func (s *Summary) Failed() bool {
	for _, r := range s.Novels {
		if r.Err != nil {
			return true
		}
	}
	return false
}

type NovelResult struct {
	Title   string
	Archive string
	Missing []string
	Err     error
}

// Line renders the user-visible summary line. Every missing asset is
// named; there are no silent failures.
func (r NovelResult) Line() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: failed: %v", r.Title, r.Err)
	case len(r.Missing) > 0:
		return fmt.Sprintf("%s: degraded (%d missing: %s)", r.Title, len(r.Missing), strings.Join(r.Missing, "; "))
	default:
		return fmt.Sprintf("%s: ok", r.Title)
	}
}

// Run authenticates once and processes the configured titles in order.
// Only authentication failure aborts the batch; per-novel failures are
// recorded and the batch continues.
func Run(ctx context.Context, cfg *config.Config, provider session.Provider) (*Summary, error) {
	slog.Info("logging in", "username", cfg.Username)
	cookies, err := provider.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	client := fetch.NewClient(cfg.RequestTimeout(), cookies)
	r := &runner{
		cfg:      cfg,
		client:   client,
		resolver: catalog.NewResolver(client, cfg.BaseURL),
	}

	summary := &Summary{}
	for _, title := range cfg.Novels {
		slog.Info("processing novel", "title", title)
		result := r.runNovel(ctx, title)
		summary.Novels = append(summary.Novels, result)
		if errors.Is(result.Err, fetch.ErrAuth) {
			return summary, fmt.Errorf("aborting batch, session is no longer valid: %w", result.Err)
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
	}
	return summary, nil
}

type runner struct {
	cfg      *config.Config
	client   *fetch.Client
	resolver *catalog.Resolver
}

func (r *runner) runNovel(ctx context.Context, title string) NovelResult {
	result := NovelResult{Title: title}

	novel, err := r.resolver.Resolve(ctx, title)
	if err != nil {
		result.Err = err
		return result
	}

	dir := filepath.Join(r.cfg.OutputDir, utils.CleanDirName(title))
	if err := os.MkdirAll(dir, 0755); err != nil {
		result.Err = fmt.Errorf("failed to create output directory: %w", err)
		return result
	}
	records, err := store.OpenDisk(dir)
	if err != nil {
		result.Err = err
		return result
	}
	tracker := store.NewTracker(records, filepath.Join(dir, "images"))

	missing := &gapList{}

	if novel.CoverUrl != "" {
		cover, err := r.fetchIllustration(ctx, tracker, novel.CoverUrl)
		if err != nil {
			if !recoverable(err) {
				result.Err = err
				return result
			}
			missing.add("cover " + novel.CoverUrl)
		} else {
			novel.Cover = cover
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, chapter := range novel.Chapters() {
		chapter := chapter
		g.Go(func() error {
			return r.processChapter(gctx, tracker, chapter, missing)
		})
	}
	if err := g.Wait(); err != nil {
		result.Err = err
		return result
	}

	archivePath := filepath.Join(dir, utils.CleanDirName(title)+".epub")
	if err := epub.Write(novel, archivePath); err != nil {
		result.Err = err
		return result
	}

	result.Archive = archivePath
	result.Missing = missing.items()
	return result
}

// processChapter fetches and normalizes one chapter. A permanently
// unavailable chapter or image degrades to a placeholder and a named
// gap; only auth failures and cancellation escalate.
func (r *runner) processChapter(ctx context.Context, tracker *store.Tracker, chapter *model.Chapter, missing *gapList) error {
	slog.Debug("fetching chapter", "title", chapter.Title, "url", chapter.Url)

	markup, err := r.client.GetHTML(ctx, chapter.Url, chapterHeaders)
	if err != nil {
		if !recoverable(err) {
			return err
		}
		chapter.Unavailable = true
		chapter.Content = normalize.Unavailable(chapter.Title)
		missing.add("chapter " + chapter.Title)
		return nil
	}

	urls, err := normalize.ExtractImageURLs(markup)
	if err != nil {
		chapter.Unavailable = true
		chapter.Content = normalize.Unavailable(chapter.Title)
		missing.add("chapter " + chapter.Title)
		return nil
	}

	images := make(map[string]string, len(urls))
	for _, url := range urls {
		ill, err := r.fetchIllustration(ctx, tracker, url)
		if err != nil {
			if !recoverable(err) {
				return err
			}
			missing.add("image " + url)
			continue
		}
		chapter.Illustrations = append(chapter.Illustrations, ill)
		images[url] = "../Images/" + ill.FileName
	}

	content, err := normalize.Chapter(chapter.Title, markup, images)
	if err != nil {
		chapter.Unavailable = true
		chapter.Content = normalize.Unavailable(chapter.Title)
		missing.add("chapter " + chapter.Title)
		return nil
	}
	chapter.Content = content
	return nil
}

// fetchIllustration goes through the incremental store: a HEAD probe
// for the remote marker, then either the cached bytes or a download
// committed back to the store.
func (r *runner) fetchIllustration(ctx context.Context, tracker *store.Tracker, url string) (*model.Illustration, error) {
	ill := model.NewIllustration(url)
	headers := map[string]string{"Referer": r.cfg.BaseURL}

	marker, err := r.client.Head(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	data, err := tracker.Ensure(ill.Id, ill.FileName, marker.String(), func() ([]byte, error) {
		slog.Debug("downloading image", "url", url)
		return r.client.Get(ctx, url, headers)
	})
	if err != nil {
		return nil, err
	}
	ill.Data = data
	return ill, nil
}

// recoverable reports whether an error degrades a single asset rather
// than failing the novel or the run.
func recoverable(err error) bool {
	var unavailable *fetch.AssetUnavailableError
	return errors.As(err, &unavailable)
}

type gapList struct {
	mu   sync.Mutex
	list []string
}

func (g *gapList) add(item string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.list = append(g.list, item)
}

func (g *gapList) items() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.list...)
}
