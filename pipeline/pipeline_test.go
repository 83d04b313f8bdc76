package pipeline

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"wenku8-archiver/config"
	"wenku8-archiver/fetch"
	"wenku8-archiver/session"
	"wenku8-archiver/store"
)

// fakeSite serves a minimal catalog with one novel: two volumes, three
// chapters, one in-chapter image plus the cover.
type fakeSite struct {
	mu             sync.Mutex
	imageGets      map[string]int
	imageETags     map[string]string
	chapterCStatus int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		imageGets: map[string]int{},
		imageETags: map[string]string{
			"/image/cover.jpg": `"cover-v1"`,
			"/image/img-1.jpg": `"img-v1"`,
		},
		chapterCStatus: http.StatusOK,
	}
}

func (f *fakeSite) setETag(path, etag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageETags[path] = etag
}

func (f *fakeSite) gets(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageGets[path]
}

func (f *fakeSite) handler() http.HandlerFunc {
	pages := map[string]string{
		"/novel/1/index.htm": `<html><body><table>
			<tr><td class="vcss">Volume One</td></tr>
			<tr><td class="ccss"><a href="101.htm">Chapter A</a></td>
			<td class="ccss"><a href="102.htm">Chapter B</a></td></tr>
			<tr><td class="vcss">Volume Two</td></tr>
			<tr><td class="ccss"><a href="201.htm">Chapter C</a></td></tr>
		</table></body></html>`,
		"/novel/1/101.htm": `<html><body><div id="content">First line.<br/><br/>Second line.</div></body></html>`,
		"/novel/1/201.htm": `<html><body><div id="content">Closing chapter.</div></body></html>`,
	}
	bookPage := `<html><body>
		<table><tr><td><b>Sample Title</b></td></tr>
		<tr><td>小说作者：Author</td><td width="20%"><img src="/image/cover.jpg"/></td></tr></table>
		<span>内容简介：</span><span>Synopsis text.</span>
		<a href="/novel/1/index.htm">小说目录</a>
	</body></html>`

	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/image/") {
			f.mu.Lock()
			etag := f.imageETags[r.URL.Path]
			if r.Method == http.MethodGet {
				f.imageGets[r.URL.Path]++
			}
			f.mu.Unlock()
			if etag == "" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("ETag", etag)
			w.Write([]byte("jpeg-bytes-for-" + r.URL.Path))
			return
		}

		if r.URL.Path == "/modules/article/search.php" {
			if r.URL.Query().Get("searchkey") == "Sample Title" {
				writeGBK(w, bookPage)
			} else {
				writeGBK(w, `<html><body><table><tr><td>no results</td></tr></table></body></html>`)
			}
			return
		}

		if r.URL.Path == "/novel/1/102.htm" {
			// Image references on chapter pages are absolute, like the
			// live site serves them.
			writeGBK(w, `<html><body><div id="content">Before image.<br/><img src="http://`+
				r.Host+`/image/img-1.jpg"/><br/>After image.</div></body></html>`)
			return
		}

		if r.URL.Path == "/novel/1/201.htm" {
			f.mu.Lock()
			status := f.chapterCStatus
			f.mu.Unlock()
			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
		}

		if page, ok := pages[r.URL.Path]; ok {
			writeGBK(w, page)
			return
		}
		http.NotFound(w, r)
	}
}

func writeGBK(w http.ResponseWriter, page string) {
	encoded, err := fetch.EncodeGB18030(page)
	if err != nil {
		panic(err)
	}
	w.Write(encoded)
}

func testConfig(t *testing.T, baseURL string, novels ...string) *config.Config {
	t.Helper()
	return &config.Config{
		Username:              "user",
		Password:              "pass",
		Novels:                novels,
		OutputDir:             t.TempDir(),
		Concurrency:           2,
		RequestTimeoutSeconds: 5,
		BaseURL:               baseURL,
	}
}

func archiveNames(t *testing.T, path string) map[string]bool {
	t.Helper()
	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer reader.Close()
	names := make(map[string]bool)
	for _, f := range reader.File {
		names[f.Name] = true
	}
	return names
}

func archiveFile(t *testing.T, path, name string) string {
	t.Helper()
	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer reader.Close()
	for _, f := range reader.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		return string(data)
	}
	t.Fatalf("archive has no %s", name)
	return ""
}

func TestRunProducesArchive(t *testing.T) {
	site := newFakeSite()
	server := httptest.NewServer(site.handler())
	defer server.Close()

	cfg := testConfig(t, server.URL, "Sample Title")
	summary, err := Run(context.Background(), cfg, session.Static{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Failed() {
		t.Fatalf("expected success, got: %s", summary.Novels[0].Line())
	}

	result := summary.Novels[0]
	if len(result.Missing) != 0 {
		t.Errorf("unexpected gaps: %v", result.Missing)
	}
	if _, err := os.Stat(result.Archive); err != nil {
		t.Fatalf("archive not written: %v", err)
	}

	opf := archiveFile(t, result.Archive, "OEBPS/content.opf")
	for _, id := range []string{"chapter-001", "chapter-002", "chapter-003"} {
		if !strings.Contains(opf, id) {
			t.Errorf("manifest missing %s", id)
		}
	}
	first := strings.Index(opf, `idref="text-chapter-001"`)
	second := strings.Index(opf, `idref="text-chapter-002"`)
	third := strings.Index(opf, `idref="text-chapter-003"`)
	if first < 0 || second < 0 || third < 0 || !(first < second && second < third) {
		t.Errorf("spine not in catalog order")
	}

	names := archiveNames(t, result.Archive)
	imageCount := 0
	for name := range names {
		if strings.HasPrefix(name, "OEBPS/Images/") {
			imageCount++
		}
	}
	// Cover plus the one chapter illustration.
	if imageCount != 2 {
		t.Errorf("expected 2 images in archive, got %d", imageCount)
	}

	chapterB := archiveFile(t, result.Archive, "OEBPS/Text/chapter-002.xhtml")
	if !strings.Contains(chapterB, "../Images/") {
		t.Errorf("chapter illustration not rewritten to archive path")
	}

	// The incremental record file must know both images.
	recordPath := filepath.Join(cfg.OutputDir, "Sample Title", ".incremental.json")
	data, err := os.ReadFile(recordPath)
	if err != nil {
		t.Fatalf("record file not written: %v", err)
	}
	records := map[string]store.Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("record file not valid json: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestRunSecondPassSkipsUnchangedImages(t *testing.T) {
	site := newFakeSite()
	server := httptest.NewServer(site.handler())
	defer server.Close()

	cfg := testConfig(t, server.URL, "Sample Title")
	if _, err := Run(context.Background(), cfg, session.Static{}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if got := site.gets("/image/img-1.jpg"); got != 1 {
		t.Fatalf("expected 1 image download on first run, got %d", got)
	}

	summary, err := Run(context.Background(), cfg, session.Static{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Failed() {
		t.Fatalf("second run: %s", summary.Novels[0].Line())
	}
	if got := site.gets("/image/img-1.jpg"); got != 1 {
		t.Errorf("unchanged image downloaded again, %d gets", got)
	}
	if got := site.gets("/image/cover.jpg"); got != 1 {
		t.Errorf("unchanged cover downloaded again, %d gets", got)
	}

	// The archive itself is always rebuilt.
	if _, err := os.Stat(summary.Novels[0].Archive); err != nil {
		t.Errorf("archive missing after second run: %v", err)
	}
}

func TestRunRefetchesChangedImage(t *testing.T) {
	site := newFakeSite()
	server := httptest.NewServer(site.handler())
	defer server.Close()

	cfg := testConfig(t, server.URL, "Sample Title")
	if _, err := Run(context.Background(), cfg, session.Static{}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	site.setETag("/image/img-1.jpg", `"img-v2"`)
	if _, err := Run(context.Background(), cfg, session.Static{}); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if got := site.gets("/image/img-1.jpg"); got != 2 {
		t.Errorf("changed image: expected 2 downloads, got %d", got)
	}
	if got := site.gets("/image/cover.jpg"); got != 1 {
		t.Errorf("unchanged cover: expected 1 download, got %d", got)
	}
}

func TestRunDegradesOnMissingChapter(t *testing.T) {
	site := newFakeSite()
	site.chapterCStatus = http.StatusNotFound
	server := httptest.NewServer(site.handler())
	defer server.Close()

	cfg := testConfig(t, server.URL, "Sample Title")
	summary, err := Run(context.Background(), cfg, session.Static{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Failed() {
		t.Fatalf("degraded novel must not fail the run: %s", summary.Novels[0].Line())
	}

	result := summary.Novels[0]
	if len(result.Missing) != 1 || !strings.Contains(result.Missing[0], "Chapter C") {
		t.Errorf("expected Chapter C gap, got %v", result.Missing)
	}
	if !strings.Contains(result.Line(), "degraded") {
		t.Errorf("summary line: %s", result.Line())
	}

	// The archive still carries the chapter, as a placeholder.
	chapterC := archiveFile(t, result.Archive, "OEBPS/Text/chapter-003.xhtml")
	if !strings.Contains(chapterC, "unavailable") {
		t.Errorf("placeholder not rendered: %s", chapterC)
	}
}

func TestRunContinuesPastUnresolvedTitle(t *testing.T) {
	site := newFakeSite()
	server := httptest.NewServer(site.handler())
	defer server.Close()

	cfg := testConfig(t, server.URL, "No Such Book", "Sample Title")
	summary, err := Run(context.Background(), cfg, session.Static{})
	if err != nil {
		t.Fatalf("run must continue past an unresolved title: %v", err)
	}
	if len(summary.Novels) != 2 {
		t.Fatalf("expected 2 results, got %d", len(summary.Novels))
	}
	if summary.Novels[0].Err == nil {
		t.Errorf("unresolved title must report an error")
	}
	if summary.Novels[1].Err != nil {
		t.Errorf("second title should succeed: %v", summary.Novels[1].Err)
	}
	if !summary.Failed() {
		t.Errorf("a completely failed novel must mark the batch failed")
	}
}
