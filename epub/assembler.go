// Package epub composes normalized fragments, illustrations and the
// cover into a single EPUB container. The manifest is derived from the
// files actually written, so manifest, spine and archive contents can
// never drift apart.
package epub

import (
	"archive/zip"
	"fmt"
	"html"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"wenku8-archiver/model"
)

// file is one entry destined for the archive, path relative to root.
type file struct {
	path string
	data []byte
}

// Write assembles the novel into an archive at outputPath. The zip is
// produced at a temporary path and moved into place, so an interrupted
// or failed run never leaves a partial file at the destination.
func Write(novel *model.Novel, outputPath string) error {
	files, err := buildFiles(novel)
	if err != nil {
		return &PackagingError{Path: outputPath, Err: err}
	}

	tmpPath := outputPath + ".tmp"
	if err := writeArchive(tmpPath, files); err != nil {
		os.Remove(tmpPath)
		return &PackagingError{Path: outputPath, Err: err}
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return &PackagingError{Path: outputPath, Err: err}
	}
	return nil
}

// buildFiles lays out every archive entry except the mimetype: content
// documents first, then the OPF/NCX derived from them.
func buildFiles(novel *model.Novel) ([]file, error) {
	files := make([]file, 0)
	files = append(files, file{"META-INF/container.xml", []byte(containerXML)})

	// Spine documents in reading order. The nav document doubles as
	// the visible table of contents page.
	spine := make([]navEntry, 0)

	if novel.Cover != nil {
		files = append(files,
			file{"OEBPS/Images/cover" + path.Ext(novel.Cover.FileName), novel.Cover.Data},
			file{"OEBPS/Text/cover.xhtml", []byte(coverXHTML(path.Ext(novel.Cover.FileName)))})
		spine = append(spine, navEntry{"cover.xhtml", "封面"})
	}

	files = append(files, file{"OEBPS/Text/nav.xhtml", []byte(navXHTML(novel))})
	spine = append(spine, navEntry{"nav.xhtml", "目录"})

	if novel.Synopsis != "" {
		fragment := fmt.Sprintf("<h1>简介</h1>\n<p>%s</p>\n", html.EscapeString(novel.Synopsis))
		files = append(files, file{"OEBPS/Text/synopsis.xhtml", []byte(document("简介", fragment))})
		spine = append(spine, navEntry{"synopsis.xhtml", "简介"})
	}

	chapterIdx := 0
	// An illustration shared by several chapters is one archive entry;
	// duplicate zip paths would also duplicate manifest ids.
	seenImages := make(map[string]bool)
	for _, volume := range novel.Volumes {
		for _, chapter := range volume.Chapters {
			chapterIdx++
			name := fmt.Sprintf("chapter-%03d.xhtml", chapterIdx)
			files = append(files, file{"OEBPS/Text/" + name, []byte(document(chapter.Title, chapter.Content))})
			spine = append(spine, navEntry{name, chapter.Title})
			for _, img := range chapter.Illustrations {
				if seenImages[img.FileName] {
					continue
				}
				seenImages[img.FileName] = true
				files = append(files, file{"OEBPS/Images/" + img.FileName, img.Data})
			}
		}
	}

	files = append(files, file{"OEBPS/Styles/style.css", []byte(styleCSS)})

	identifier, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identifier: %v", err)
	}

	opf, err := contentOPF(novel, identifier.String(), files)
	if err != nil {
		return nil, err
	}
	files = append(files, file{"OEBPS/content.opf", []byte(opf)})

	ncx, err := tocNCX(novel, identifier.String(), spine)
	if err != nil {
		return nil, err
	}
	files = append(files, file{"OEBPS/toc.ncx", []byte(ncx)})

	return files, nil
}

type navEntry struct {
	id    string
	title string
}

// contentOPF builds the package document. Every manifest entry comes
// straight from the file list, so nothing is declared that was not
// written, and everything written is declared.
func contentOPF(novel *model.Novel, identifier string, files []file) (string, error) {
	metadata := &model.Metadata{
		XmlnsDC: "http://purl.org/dc/elements/1.1/",
		Titles:  []model.DCValue{{Value: novel.Title}},
		Identifiers: []model.DCValue{
			{Value: "urn:uuid:" + identifier, ID: "book-id"},
		},
		Languages: []model.DCValue{{Value: "zh-CN"}},
		Metas: []model.Meta{
			{Property: "dcterms:modified", Value: time.Now().UTC().Format("2006-01-02T15:04:05Z")},
		},
	}
	if novel.Author != "" {
		metadata.Creators = []model.DCValue{{Value: novel.Author}}
	}
	if novel.Synopsis != "" {
		metadata.Descriptions = []model.DCValue{{Value: novel.Synopsis}}
	}

	manifest := &model.Manifest{Items: make([]model.ManifestItem, 0)}
	manifest.Items = append(manifest.Items, model.ManifestItem{
		ID:    "ncx",
		Link:  "toc.ncx",
		Media: "application/x-dtbncx+xml",
	})
	for _, f := range files {
		rel, ok := strings.CutPrefix(f.path, "OEBPS/")
		if !ok {
			continue
		}
		item := model.ManifestItem{
			ID:    manifestID(rel),
			Link:  rel,
			Media: mediaType(path.Ext(rel)),
		}
		switch {
		case rel == "Text/nav.xhtml":
			item.Properties = "nav"
		case novel.Cover != nil && rel == "Images/cover"+path.Ext(novel.Cover.FileName):
			item.ID = "cover-image"
			item.Properties = "cover-image"
			metadata.Metas = append(metadata.Metas, model.Meta{Name: "cover", Content: "cover-image"})
		}
		manifest.Items = append(manifest.Items, item)
	}

	spine := &model.Spine{Toc: "ncx", Items: make([]model.SpineItem, 0)}
	for _, item := range manifest.Items {
		if path.Ext(item.Link) == ".xhtml" {
			spine.Items = append(spine.Items, model.SpineItem{IDref: item.ID})
		}
	}

	pkg := &model.OPFPackage{
		Xmlns:            "http://www.idpf.org/2007/opf",
		Version:          "3.0",
		UniqueIdentifier: "book-id",
		Metadata:         metadata,
		Manifest:         manifest,
		Spine:            spine,
	}
	return pkg.Marshal()
}

// tocNCX mirrors the spine order and chapter titles, nesting chapters
// under their volume.
func tocNCX(novel *model.Novel, identifier string, spine []navEntry) (string, error) {
	navMap := &model.NavMap{Points: make([]*model.NavPoint, 0)}
	order := 0
	nextOrder := func() int { order++; return order }

	for _, entry := range spine {
		if !strings.HasPrefix(entry.id, "chapter-") {
			navMap.Points = append(navMap.Points, &model.NavPoint{
				Id:        strings.TrimSuffix(entry.id, ".xhtml"),
				PlayOrder: nextOrder(),
				Label:     entry.title,
				Content:   model.NavPointContent{Src: "Text/" + entry.id},
			})
		}
	}

	chapterIdx := 0
	for vi, volume := range novel.Volumes {
		volumePoint := &model.NavPoint{
			Id:        fmt.Sprintf("volume-%03d", vi+1),
			PlayOrder: nextOrder(),
			Label:     volume.Title,
		}
		for ci, chapter := range volume.Chapters {
			chapterIdx++
			src := fmt.Sprintf("Text/chapter-%03d.xhtml", chapterIdx)
			if ci == 0 {
				volumePoint.Content = model.NavPointContent{Src: src}
			}
			volumePoint.Points = append(volumePoint.Points, &model.NavPoint{
				Id:        fmt.Sprintf("chapter-%03d", chapterIdx),
				PlayOrder: nextOrder(),
				Label:     chapter.Title,
				Content:   model.NavPointContent{Src: src},
			})
		}
		navMap.Points = append(navMap.Points, volumePoint)
	}

	ncx := &model.TocNCX{
		Xmlns:   "http://www.daisy.org/z3986/2005/ncx/",
		Version: "2005-1",
		Head: &model.NCXHead{
			Meta: []model.NCXHeadMeta{
				{Name: "dtb:uid", Content: "urn:uuid:" + identifier},
				{Name: "dtb:depth", Content: "2"},
			},
		},
		DocTitle: model.NCXText{Text: novel.Title},
		NavMap:   navMap,
	}
	return ncx.Marshal()
}

// navXHTML is the EPUB3 navigation document: volume sections with
// their chapters, mirroring spine order.
func navXHTML(novel *model.Novel) string {
	contents := strings.Builder{}
	contents.WriteString(`<nav epub:type="toc" id="toc">` + "\n<ol>\n")
	if novel.Synopsis != "" {
		contents.WriteString(`<li><a href="synopsis.xhtml">简介</a></li>` + "\n")
	}
	chapterIdx := 0
	for _, volume := range novel.Volumes {
		contents.WriteString("<li><span>" + html.EscapeString(volume.Title) + "</span>\n<ol>\n")
		for _, chapter := range volume.Chapters {
			chapterIdx++
			contents.WriteString(fmt.Sprintf(`<li><a href="chapter-%03d.xhtml">%s</a></li>`+"\n",
				chapterIdx, html.EscapeString(chapter.Title)))
		}
		contents.WriteString("</ol>\n</li>\n")
	}
	contents.WriteString("</ol>\n</nav>")
	return document("目录", contents.String())
}

func coverXHTML(ext string) string {
	return document("封面", fmt.Sprintf(`<div class="illustration"><img src="../Images/cover%s" alt="封面"/></div>`, ext))
}

// document wraps a fragment in the XHTML shell shared by every text
// file in the archive.
func document(title, fragment string) string {
	builder := strings.Builder{}
	builder.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	builder.WriteString("<!DOCTYPE html>\n")
	builder.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	builder.WriteString("<head>\n<title>" + html.EscapeString(title) + "</title>\n")
	builder.WriteString(`<link rel="stylesheet" type="text/css" href="../Styles/style.css"/>` + "\n</head>\n")
	builder.WriteString("<body>\n<div>\n")
	builder.WriteString(fragment)
	builder.WriteString("\n</div>\n</body>\n</html>\n")
	return builder.String()
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

func manifestID(rel string) string {
	return strings.ToLower(strings.ReplaceAll(rel, "/", "-"))
}

func mediaType(ext string) string {
	switch strings.ToLower(ext) {
	case ".xhtml":
		return "application/xhtml+xml"
	case ".css":
		return "text/css"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".ncx":
		return "application/x-dtbncx+xml"
	}
	return "application/octet-stream"
}

// writeArchive produces the zip: the mimetype entry first and stored
// uncompressed, as the container format requires, everything else
// deflated.
func writeArchive(path string, files []file) error {
	zipFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	if err := addToZip(zipWriter, "mimetype", []byte("application/epub+zip"), zip.Store); err != nil {
		zipWriter.Close()
		return err
	}
	for _, f := range files {
		if err := addToZip(zipWriter, f.path, f.data, zip.Deflate); err != nil {
			zipWriter.Close()
			return err
		}
	}
	return zipWriter.Close()
}

func addToZip(zipWriter *zip.Writer, relPath string, content []byte, method uint16) error {
	header := &zip.FileHeader{
		Name:   relPath,
		Method: method,
	}
	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = writer.Write(content)
	return err
}
