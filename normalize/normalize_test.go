package normalize

import (
	"strings"
	"testing"
)

func TestChapterParagraphs(t *testing.T) {
	markup := `<html><body><div id="content">第一段<br /><br />第二段</div></body></html>`
	fragment, err := Chapter("第一章", markup, nil)
	if err != nil {
		t.Fatalf("failed to normalize: %v", err)
	}
	if !strings.Contains(fragment, "<h1>第一章</h1>") {
		t.Errorf("missing heading: %q", fragment)
	}
	if !strings.Contains(fragment, "<p>第一段</p>") || !strings.Contains(fragment, "<p>第二段</p>") {
		t.Errorf("paragraph breaks lost: %q", fragment)
	}
}

func TestChapterEscapesEntities(t *testing.T) {
	markup := `<html><body><div id="content">a &lt; b &amp; c</div></body></html>`
	fragment, err := Chapter(`标题 <"&>`, markup, nil)
	if err != nil {
		t.Fatalf("failed to normalize: %v", err)
	}
	if strings.Contains(fragment, "<\"") {
		t.Errorf("title not escaped: %q", fragment)
	}
	if !strings.Contains(fragment, "<p>a &lt; b &amp; c</p>") {
		t.Errorf("body text not escaped: %q", fragment)
	}
}

func TestChapterRewritesImages(t *testing.T) {
	markup := `<html><body><div id="content">before<br /><img class="imagecontent" src="http://img.example/1.jpg"/><br />after</div></body></html>`
	images := map[string]string{"http://img.example/1.jpg": "../Images/abc.jpg"}
	fragment, err := Chapter("插图", markup, images)
	if err != nil {
		t.Fatalf("failed to normalize: %v", err)
	}
	if !strings.Contains(fragment, `<img src="../Images/abc.jpg"`) {
		t.Errorf("image not rewritten to local path: %q", fragment)
	}
	if strings.Contains(fragment, `src="http://img.example/1.jpg"`) {
		t.Errorf("remote url leaked into fragment: %q", fragment)
	}
	// Document order preserved around the illustration.
	if strings.Index(fragment, "before") > strings.Index(fragment, "../Images/abc.jpg") {
		t.Errorf("illustration out of order: %q", fragment)
	}
}

func TestChapterDropsUnfetchedImages(t *testing.T) {
	markup := `<html><body><div id="content"><img src="http://img.example/missing.jpg"/>text</div></body></html>`
	fragment, err := Chapter("章", markup, map[string]string{})
	if err != nil {
		t.Fatalf("failed to normalize: %v", err)
	}
	if strings.Contains(fragment, "img") {
		t.Errorf("unfetched image should be dropped: %q", fragment)
	}
}

func TestExtractImageURLs(t *testing.T) {
	markup := `<html><body><div id="content">
		<img src="http://img.example/1.jpg"/>
		<img data-src="http://img.example/2.png" src="placeholder.gif"/>
		<img src="http://img.example/1.jpg"/>
	</div></body></html>`
	urls, err := ExtractImageURLs(markup)
	if err != nil {
		t.Fatalf("failed to extract: %v", err)
	}
	want := []string{"http://img.example/1.jpg", "http://img.example/2.png"}
	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("url %d: expected %q, got %q", i, want[i], urls[i])
		}
	}
}

func TestUnavailable(t *testing.T) {
	fragment := Unavailable("第三章 <tag>")
	if !strings.Contains(fragment, "&lt;tag&gt;") {
		t.Errorf("title not escaped: %q", fragment)
	}
	if !strings.Contains(fragment, "unavailable") {
		t.Errorf("missing unavailable marker: %q", fragment)
	}
}
