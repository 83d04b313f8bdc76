package model

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"path"
)

// Novel is the resolved catalog entry for one title. It is rebuilt from
// remote state on every run; only the incremental illustration records
// persist across runs.
type Novel struct {
	Title    string
	Id       int
	Author   string
	Synopsis string
	CoverUrl string
	Cover    *Illustration
	Volumes  []*Volume
}

// Volume holds an ordered chapter list. The order defines reading order.
type Volume struct {
	Title    string
	Url      string
	Chapters []*Chapter
}

type Chapter struct {
	Title string
	Url   string

	// Content is the normalized XHTML fragment, filled in after fetch.
	Content       string
	Unavailable   bool
	Illustrations []*Illustration
}

// Illustration identity is the source URL, not the content: a changed
// remote image with the same URL is an update, not a new entity.
type Illustration struct {
	Id       string
	Url      string
	FileName string
	Data     []byte
}

// Chapters flattens the volumes in reading order.
func (n *Novel) Chapters() []*Chapter {
	chapters := make([]*Chapter, 0)
	for _, volume := range n.Volumes {
		chapters = append(chapters, volume.Chapters...)
	}
	return chapters
}

// IllustrationId derives the stable identifier for an image URL.
func IllustrationId(ref string) string {
	hash := sha256.Sum256([]byte(ref))
	return fmt.Sprintf("%x", hash[:])
}

// IllustrationFileName is the archive-local file name for an image URL.
// The extension comes from the path component only; query strings must
// not leak into file names.
func IllustrationFileName(ref string) string {
	ext := path.Ext(ref)
	if u, err := url.Parse(ref); err == nil {
		ext = path.Ext(u.Path)
	}
	if ext == "" {
		ext = ".jpg"
	}
	return IllustrationId(ref) + ext
}

// NewIllustration builds the transient illustration entity for a URL.
func NewIllustration(ref string) *Illustration {
	return &Illustration{
		Id:       IllustrationId(ref),
		Url:      ref,
		FileName: IllustrationFileName(ref),
	}
}
