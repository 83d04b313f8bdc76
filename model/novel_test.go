package model

import (
	"strings"
	"testing"
)

func TestIllustrationFileNameExtension(t *testing.T) {
	cases := []struct {
		name string
		url  string
		ext  string
	}{
		{"plain", "https://img.example.com/pictures/1.jpg", ".jpg"},
		{"query string", "https://img.example.com/pictures/1.jpg?v=2", ".jpg"},
		{"png", "https://img.example.com/pictures/1.png", ".png"},
		{"no extension", "https://img.example.com/pictures/1", ".jpg"},
		{"query only", "https://img.example.com/show?id=1", ".jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			name := IllustrationFileName(tc.url)
			if !strings.HasSuffix(name, tc.ext) {
				t.Errorf("expected suffix %s, got %s", tc.ext, name)
			}
			if strings.ContainsAny(name, "?&=") {
				t.Errorf("file name carries query characters: %s", name)
			}
		})
	}
}

func TestIllustrationIdStableAndDistinct(t *testing.T) {
	a := IllustrationId("https://img.example.com/1.jpg")
	if a != IllustrationId("https://img.example.com/1.jpg") {
		t.Errorf("identifier not stable for the same url")
	}
	if a == IllustrationId("https://img.example.com/2.jpg") {
		t.Errorf("distinct urls must not collide")
	}
}

func TestChaptersFlattensInReadingOrder(t *testing.T) {
	novel := &Novel{
		Volumes: []*Volume{
			{Chapters: []*Chapter{{Title: "A"}, {Title: "B"}}},
			{Chapters: []*Chapter{{Title: "C"}}},
		},
	}
	chapters := novel.Chapters()
	if len(chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(chapters))
	}
	for i, want := range []string{"A", "B", "C"} {
		if chapters[i].Title != want {
			t.Errorf("position %d: expected %s, got %s", i, want, chapters[i].Title)
		}
	}
}
