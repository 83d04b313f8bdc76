package epub

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PackDir zips an already-staged EPUB directory tree (META-INF, OEBPS)
// into <dir>.epub. Incremental records and leftover temp files are not
// part of the book and are skipped.
func PackDir(dirPath string) error {
	savePath := strings.TrimSuffix(dirPath, string(filepath.Separator)) + ".epub"
	tmpPath := savePath + ".tmp"

	if err := packDirTo(tmpPath, dirPath); err != nil {
		os.Remove(tmpPath)
		return &PackagingError{Path: savePath, Err: err}
	}
	if err := os.Rename(tmpPath, savePath); err != nil {
		os.Remove(tmpPath)
		return &PackagingError{Path: savePath, Err: err}
	}
	return nil
}

func packDirTo(savePath, dirPath string) error {
	zipFile, err := os.Create(savePath)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	if err := addToZip(zipWriter, "mimetype", []byte("application/epub+zip"), zip.Store); err != nil {
		zipWriter.Close()
		return err
	}
	if err := addDirContentToZip(zipWriter, dirPath); err != nil {
		zipWriter.Close()
		return err
	}
	return zipWriter.Close()
}

func addDirContentToZip(zipWriter *zip.Writer, dirPath string) error {
	return filepath.Walk(dirPath, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		base := filepath.Base(filePath)
		if base == "mimetype" || strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
			return nil
		}

		relPath, err := filepath.Rel(dirPath, filePath)
		if err != nil {
			return err
		}

		file, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer file.Close()

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		header.Method = zip.Deflate

		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return err
		}

		_, err = io.Copy(writer, file)
		return err
	})
}
