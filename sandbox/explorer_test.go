package sandbox

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dfkpanel/panel/validation"
)

func newTestExplorer(t *testing.T) (*Explorer, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	resolver, err := NewResolver("/data")
	require.NoError(t, err)
	require.NoError(t, resolver.EnsureRoot(fs))
	return NewExplorer(zaptest.NewLogger(t), resolver, WithFileSystem(fs)), fs
}

func TestExplorerConstructors(t *testing.T) {
	logger := zaptest.NewLogger(t)
	resolver, err := NewResolver("/data")
	require.NoError(t, err)

	t.Run("DefaultConstructor", func(t *testing.T) {
		explorer := NewExplorer(logger, resolver)
		require.NotNil(t, explorer)
		assert.Equal(t, resolver, explorer.Resolver())
		assert.IsType(t, &afero.OsFs{}, explorer.FileSystem())
		assert.Equal(t, DefaultMaxArchiveBytes, explorer.archiveLimit())
	})

	t.Run("ConstructorWithOptions", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		explorer := NewExplorer(logger, resolver, WithFileSystem(fs), WithMaxArchiveBytes(1024))
		assert.Equal(t, fs, explorer.FileSystem())
		assert.Equal(t, int64(1024), explorer.archiveLimit())
	})
}

func TestExplorerList(t *testing.T) {
	explorer, fs := newTestExplorer(t)
	require.NoError(t, fs.MkdirAll("/data/site/assets", DirPermission))
	require.NoError(t, afero.WriteFile(fs, "/data/site/index.html", []byte("<h1>hi</h1>"), FilePermission))
	require.NoError(t, afero.WriteFile(fs, "/data/site/about.html", []byte("about"), FilePermission))

	listing, err := explorer.List("site")
	require.NoError(t, err)
	assert.Equal(t, "site", listing.Rel)
	assert.Equal(t, "", listing.Parent)
	require.Len(t, listing.Entries, 3)

	assert.Equal(t, "assets", listing.Entries[0].Name)
	assert.True(t, listing.Entries[0].IsDir)
	assert.Equal(t, "site/assets", listing.Entries[0].Rel)
	assert.Equal(t, "about.html", listing.Entries[1].Name)
	assert.Equal(t, "index.html", listing.Entries[2].Name)
	assert.Equal(t, int64(len("<h1>hi</h1>")), listing.Entries[2].Size)

	t.Run("Nested", func(t *testing.T) {
		listing, err := explorer.List("/site/assets/")
		require.NoError(t, err)
		assert.Equal(t, "site/assets", listing.Rel)
		assert.Equal(t, "site", listing.Parent)
		assert.Empty(t, listing.Entries)
	})

	t.Run("Root", func(t *testing.T) {
		listing, err := explorer.List("")
		require.NoError(t, err)
		assert.Equal(t, "", listing.Rel)
		require.Len(t, listing.Entries, 1)
	})

	t.Run("Escape", func(t *testing.T) {
		_, err := explorer.List("../etc")
		assert.ErrorIs(t, err, ErrOutsideRoot)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := explorer.List("nope")
		require.Error(t, err)
	})
}

func TestExplorerReadWrite(t *testing.T) {
	explorer, fs := newTestExplorer(t)

	require.NoError(t, explorer.WriteFile("notes.txt", []byte("hello")))
	data, err := explorer.ReadFile("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, explorer.WriteFile("/notes.txt", []byte("again")))
	data, err = afero.ReadFile(fs, "/data/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "again", string(data))

	_, err = explorer.ReadFile("")
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	assert.ErrorIs(t, explorer.WriteFile("", []byte("x")), validation.ErrInvalidInput)
	assert.ErrorIs(t, explorer.WriteFile("../escape.txt", []byte("x")), ErrOutsideRoot)

	exists, err := afero.Exists(fs, "/escape.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExplorerCreate(t *testing.T) {
	explorer, fs := newTestExplorer(t)

	rel, err := explorer.Create("", "web", KindDir)
	require.NoError(t, err)
	assert.Equal(t, "web", rel)

	rel, err = explorer.Create("web", "index.php", "")
	require.NoError(t, err)
	assert.Equal(t, "web/index.php", rel)
	data, err := afero.ReadFile(fs, "/data/web/index.php")
	require.NoError(t, err)
	assert.Empty(t, data)

	rel, err = explorer.Create("web", "a/b/c", KindDir)
	require.NoError(t, err)
	assert.Equal(t, "web/a/b/c", rel)

	t.Run("NameEscapes", func(t *testing.T) {
		_, err := explorer.Create("web", "../../outside", KindFile)
		assert.ErrorIs(t, err, ErrOutsideRoot)
	})

	t.Run("MissingName", func(t *testing.T) {
		_, err := explorer.Create("web", "", KindFile)
		assert.ErrorIs(t, err, validation.ErrInvalidInput)
	})

	t.Run("NameIsDot", func(t *testing.T) {
		_, err := explorer.Create("web", ".", KindFile)
		assert.ErrorIs(t, err, validation.ErrInvalidInput)
	})

	t.Run("UnknownKind", func(t *testing.T) {
		_, err := explorer.Create("web", "x", "symlink")
		assert.ErrorIs(t, err, validation.ErrInvalidInput)
	})
}

func TestExplorerDelete(t *testing.T) {
	explorer, fs := newTestExplorer(t)
	require.NoError(t, fs.MkdirAll("/data/a/b", DirPermission))
	require.NoError(t, afero.WriteFile(fs, "/data/a/b/file", []byte("x"), FilePermission))

	parent, err := explorer.Delete("a/b")
	require.NoError(t, err)
	assert.Equal(t, "a", parent)

	exists, err := afero.Exists(fs, "/data/a/b/file")
	require.NoError(t, err)
	assert.False(t, exists)

	parent, err = explorer.Delete("a")
	require.NoError(t, err)
	assert.Equal(t, "", parent)

	t.Run("Root", func(t *testing.T) {
		for _, rel := range []string{"", "/", ".", "x/.."} {
			_, err := explorer.Delete(rel)
			assert.ErrorIs(t, err, validation.ErrInvalidInput, rel)
		}
		exists, err := afero.DirExists(fs, "/data")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Escape", func(t *testing.T) {
		_, err := explorer.Delete("../etc")
		assert.ErrorIs(t, err, ErrOutsideRoot)
	})
}

func TestExplorerUpload(t *testing.T) {
	explorer, fs := newTestExplorer(t)

	rel, err := explorer.Upload("uploads/img", "../../../photo.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "uploads/img/photo.png", rel)

	data, err := afero.ReadFile(fs, "/data/uploads/img/photo.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	_, err = explorer.Upload("uploads", "..", []byte("x"))
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	_, err = explorer.Upload("../x", "file", []byte("x"))
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestExplorerStat(t *testing.T) {
	explorer, fs := newTestExplorer(t)
	require.NoError(t, afero.WriteFile(fs, "/data/notes.txt", []byte("abc"), FilePermission))

	info, err := explorer.Stat("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	_, err = explorer.Stat("../notes.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = explorer.Stat("missing.txt")
	assert.Error(t, err)
}
