package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/dfkpanel/panel/validation"
)

// ErrOutsideRoot is returned when a path would resolve outside the root.
var ErrOutsideRoot = errors.New("path outside root")

// ErrInvalidPath is returned for paths that cannot be resolved at all.
var ErrInvalidPath = fmt.Errorf("%w: invalid path", validation.ErrInvalidInput)

// Resolve maps an untrusted relative path onto root. The computation is purely
// lexical: the relative path is stripped of leading separators so it can never
// be taken as absolute, cleaned, and joined with the cleaned root. The result
// is rejected unless it is root itself or lies beneath it on a full path
// segment boundary.
func Resolve(root, relative string) (string, error) {
	if strings.ContainsRune(relative, 0) {
		return "", ErrInvalidPath
	}
	root = filepath.Clean(root)

	requested := strings.ReplaceAll(relative, `\`, "/")
	requested = strings.TrimLeft(requested, "/")
	requested = filepath.Clean(filepath.FromSlash(requested))

	abs := filepath.Join(root, requested)
	if !Within(root, abs) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, relative)
	}
	return abs, nil
}

// Within reports whether path equals base or is nested below it. Both are
// cleaned first; "/data2" is not within "/data".
func Within(base, path string) bool {
	base = filepath.Clean(base)
	path = filepath.Clean(path)
	if path == base {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// Resolver binds Resolve to a fixed root directory.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver for root. Relative roots are made absolute
// against the working directory once, here.
func NewResolver(root string) (*Resolver, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps relative onto the root.
func (r *Resolver) Resolve(relative string) (string, error) {
	return Resolve(r.root, relative)
}

// Rel converts a resolved path back to its slash-separated form relative to
// the root. The root itself maps to "".
func (r *Resolver) Rel(abs string) (string, error) {
	if !Within(r.root, abs) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, abs)
	}
	rel, err := filepath.Rel(r.root, filepath.Clean(abs))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, abs)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// EnsureRoot creates the root directory if it does not exist yet. It is
// idempotent and meant to run once at startup.
func (r *Resolver) EnsureRoot(fs afero.Fs) error {
	if err := fs.MkdirAll(r.root, DirPermission); err != nil {
		return fmt.Errorf("failed to create root directory %s: %w", r.root, err)
	}
	info, err := fs.Stat(r.root)
	if err != nil {
		return fmt.Errorf("failed to stat root directory %s: %w", r.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", r.root)
	}
	return nil
}

// File permission constants
const (
	DirPermission  os.FileMode = 0o755
	FilePermission os.FileMode = 0o644
)
