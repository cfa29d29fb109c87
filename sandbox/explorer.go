package sandbox

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dfkpanel/panel/validation"
)

// Entry kinds accepted by Explorer.Create
const (
	KindFile = "file"
	KindDir  = "dir"
)

// Entry describes one item of a directory listing
type Entry struct {
	Name    string    `json:"name" yaml:"name"`
	Rel     string    `json:"rel" yaml:"rel"`
	IsDir   bool      `json:"is_dir" yaml:"is_dir"`
	Size    int64     `json:"size" yaml:"size"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
}

// Listing is the content of a directory below the root
type Listing struct {
	Rel     string  `json:"rel" yaml:"rel"`
	Parent  string  `json:"parent" yaml:"parent"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// Explorer performs file operations confined to the resolver's root.
type Explorer struct {
	logger   *zap.Logger
	resolver *Resolver
	fs       afero.Fs

	maxArchiveBytes int64
}

// ExplorerOption defines a functional option for Explorer
type ExplorerOption func(*Explorer)

// WithFileSystem sets the afero filesystem used by the Explorer
func WithFileSystem(fs afero.Fs) ExplorerOption {
	return func(e *Explorer) {
		e.fs = fs
	}
}

// NewExplorer creates an Explorer backed by the OS filesystem unless overridden.
func NewExplorer(logger *zap.Logger, resolver *Resolver, opts ...ExplorerOption) *Explorer {
	e := &Explorer{
		logger:   logger,
		resolver: resolver,
		fs:       afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolver returns the resolver the explorer is bound to.
func (e *Explorer) Resolver() *Resolver {
	return e.resolver
}

// FileSystem returns the underlying filesystem.
func (e *Explorer) FileSystem() afero.Fs {
	return e.fs
}

// Stat resolves rel and returns its file info.
func (e *Explorer) Stat(rel string) (os.FileInfo, error) {
	abs, err := e.resolver.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return e.fs.Stat(abs)
}

// List returns the entries of the directory at rel, directories first.
func (e *Explorer) List(rel string) (*Listing, error) {
	abs, err := e.resolver.Resolve(rel)
	if err != nil {
		return nil, err
	}
	normalized, err := e.resolver.Rel(abs)
	if err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(e.fs, abs)
	if err != nil {
		return nil, fmt.Errorf("unable to read directory %s: %w", normalized, err)
	}

	listing := &Listing{
		Rel:     normalized,
		Parent:  parentOf(normalized),
		Entries: make([]Entry, 0, len(infos)),
	}
	for _, info := range infos {
		listing.Entries = append(listing.Entries, Entry{
			Name:    info.Name(),
			Rel:     path.Join(normalized, info.Name()),
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.SliceStable(listing.Entries, func(i, j int) bool {
		a, b := listing.Entries[i], listing.Entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
	return listing, nil
}

// ReadFile returns the content of the file at rel.
func (e *Explorer) ReadFile(rel string) ([]byte, error) {
	abs, err := e.resolver.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := e.fs.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, validation.Invalidf("%s is a directory", rel)
	}
	return afero.ReadFile(e.fs, abs)
}

// WriteFile replaces the content of the file at rel.
func (e *Explorer) WriteFile(rel string, content []byte) error {
	abs, err := e.resolver.Resolve(rel)
	if err != nil {
		return err
	}
	if abs == e.resolver.Root() {
		return validation.Invalidf("cannot write to the root directory")
	}
	if err := afero.WriteFile(e.fs, abs, content, FilePermission); err != nil {
		return fmt.Errorf("unable to save file: %w", err)
	}
	e.logger.Info("file saved", zap.String("path", abs), zap.Int("bytes", len(content)))
	return nil
}

// Create makes an empty file or a directory named name inside relDir and
// returns the relative path of the new entry.
func (e *Explorer) Create(relDir, name, kind string) (string, error) {
	if name == "" {
		return "", validation.Invalidf("missing name")
	}
	if kind == "" {
		kind = KindFile
	}
	if kind != KindFile && kind != KindDir {
		return "", validation.Invalidf("unsupported entry type %q", kind)
	}

	absDir, err := e.resolver.Resolve(relDir)
	if err != nil {
		return "", err
	}
	dirRel, err := e.resolver.Rel(absDir)
	if err != nil {
		return "", err
	}
	// name is untrusted too; resolve the joined path instead of joining blindly
	target, err := e.resolver.Resolve(path.Join(dirRel, name))
	if err != nil {
		return "", err
	}
	if target == absDir {
		return "", validation.Invalidf("invalid name %q", name)
	}

	switch kind {
	case KindDir:
		if err := e.fs.MkdirAll(target, DirPermission); err != nil {
			return "", fmt.Errorf("unable to create dir: %w", err)
		}
	default:
		if err := afero.WriteFile(e.fs, target, nil, FilePermission); err != nil {
			return "", fmt.Errorf("unable to create file: %w", err)
		}
	}
	e.logger.Info("entry created", zap.String("path", target), zap.String("kind", kind))
	return e.resolver.Rel(target)
}

// Delete removes the file or directory at rel recursively and returns the
// relative path of its parent. The root itself cannot be deleted.
func (e *Explorer) Delete(rel string) (string, error) {
	abs, err := e.resolver.Resolve(rel)
	if err != nil {
		return "", err
	}
	if abs == e.resolver.Root() {
		return "", validation.Invalidf("refusing to delete the root directory")
	}
	if err := e.fs.RemoveAll(abs); err != nil {
		return "", fmt.Errorf("unable to delete: %w", err)
	}
	normalized, err := e.resolver.Rel(abs)
	if err != nil {
		return "", err
	}
	e.logger.Info("entry deleted", zap.String("path", abs))
	return parentOf(normalized), nil
}

// Upload stores data as a file inside relDir, creating the directory when
// needed. Only the base name of name is kept.
func (e *Explorer) Upload(relDir, name string, data []byte) (string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", validation.Invalidf("invalid upload name %q", name)
	}

	absDir, err := e.resolver.Resolve(relDir)
	if err != nil {
		return "", fmt.Errorf("invalid upload path: %w", err)
	}
	if err := e.fs.MkdirAll(absDir, DirPermission); err != nil {
		return "", fmt.Errorf("unable to create upload directory: %w", err)
	}
	target := filepath.Join(absDir, base)
	if err := afero.WriteFile(e.fs, target, data, FilePermission); err != nil {
		return "", fmt.Errorf("unable to store upload: %w", err)
	}
	e.logger.Info("file uploaded", zap.String("path", target), zap.Int("bytes", len(data)))
	return e.resolver.Rel(target)
}

func parentOf(rel string) string {
	if rel == "" {
		return ""
	}
	parent := path.Dir(rel)
	if parent == "." {
		return ""
	}
	return parent
}
