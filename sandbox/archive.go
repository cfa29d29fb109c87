package sandbox

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dfkpanel/panel/validation"
)

// DefaultMaxArchiveBytes caps the unpacked size of an imported archive.
const DefaultMaxArchiveBytes int64 = 20 * 1024 * 1024

// ErrArchiveTooLarge is returned when an archive exceeds the configured cap.
var ErrArchiveTooLarge = errors.New("archive exceeds size limit")

// WithMaxArchiveBytes sets the archive size cap used by import and export
func WithMaxArchiveBytes(limit int64) ExplorerOption {
	return func(e *Explorer) {
		if limit > 0 {
			e.maxArchiveBytes = limit
		}
	}
}

func (e *Explorer) archiveLimit() int64 {
	if e.maxArchiveBytes > 0 {
		return e.maxArchiveBytes
	}
	return DefaultMaxArchiveBytes
}

// ImportArchive extracts tar.gz data into the directory at relDir. Every
// entry name goes through the resolver, so entries that are absolute or climb
// out of relDir are rejected before anything is written for them.
func (e *Explorer) ImportArchive(relDir string, tarData []byte) ([]string, error) {
	destDir, err := e.resolver.Resolve(relDir)
	if err != nil {
		return nil, err
	}
	destRel, err := e.resolver.Rel(destDir)
	if err != nil {
		return nil, err
	}

	gzipReader, err := gzip.NewReader(bytes.NewReader(tarData))
	if err != nil {
		return nil, validation.Invalidf("failed to create gzip reader: %v", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	var written []string
	var total int64

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, validation.Invalidf("error reading tar: %v", err)
		}

		if filepath.IsAbs(header.Name) {
			return written, validation.Invalidf("absolute path not allowed in tar: %s", header.Name)
		}
		cleanName := path.Clean(filepath.ToSlash(header.Name))
		if cleanName == ".." || strings.HasPrefix(cleanName, "../") {
			return written, fmt.Errorf("%w: unsafe relative path in tar: %s", ErrOutsideRoot, header.Name)
		}
		target, err := e.resolver.Resolve(path.Join(destRel, cleanName))
		if err != nil {
			return written, err
		}
		if !Within(destDir, target) {
			return written, fmt.Errorf("%w: invalid file path in tar: %s", ErrOutsideRoot, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := e.fs.MkdirAll(target, DirPermission); err != nil {
				return written, fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			total += header.Size
			if total > e.archiveLimit() {
				return written, fmt.Errorf("%w: %d bytes > %d bytes", ErrArchiveTooLarge, total, e.archiveLimit())
			}
			if err := e.fs.MkdirAll(filepath.Dir(target), DirPermission); err != nil {
				return written, fmt.Errorf("failed to create parent directories: %w", err)
			}
			fileContent := make([]byte, header.Size)
			if _, err := io.ReadFull(tarReader, fileContent); err != nil {
				return written, fmt.Errorf("failed to read file content: %w", err)
			}
			if err := afero.WriteFile(e.fs, target, fileContent, FilePermission); err != nil {
				return written, fmt.Errorf("failed to write file: %w", err)
			}
			rel, _ := e.resolver.Rel(target)
			written = append(written, rel)
		default:
			return written, validation.Invalidf("unsupported file type in tar: %c", header.Typeflag)
		}
	}

	e.logger.Info("archive imported", zap.String("path", destDir), zap.Int("files", len(written)))
	return written, nil
}

// ExportArchive returns a tar.gz of the directory at rel. Entry names are
// relative to that directory.
func (e *Explorer) ExportArchive(rel string) ([]byte, error) {
	srcDir, err := e.resolver.Resolve(rel)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)
	var total int64

	err = afero.Walk(e.fs, srcDir, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() && !fi.Mode().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, file)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if fi.IsDir() {
			header.Name += "/"
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		total += fi.Size()
		if total > e.archiveLimit() {
			return fmt.Errorf("%w: %d bytes > %d bytes", ErrArchiveTooLarge, total, e.archiveLimit())
		}
		data, err := e.fs.Open(file)
		if err != nil {
			return err
		}
		defer data.Close()

		_, err = io.Copy(tarWriter, data)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
