package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/resolver"
	"github.com/wildland/wildland-go/pkg/storage"
)

type fakeNode struct {
	attr     storage.Attr
	children map[string]string // name -> file|dir marker, unused directly
}

type fakeBackend struct {
	// files[id][path] = attr; directories are any prefix with entries
	files map[string]map[string]storage.Attr
	dirs  map[string]map[string][]string // id -> relpath -> child names
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		files: make(map[string]map[string]storage.Attr),
		dirs:  make(map[string]map[string][]string),
	}
}

func (f *fakeBackend) addFile(id, path string, size int64) {
	if f.files[id] == nil {
		f.files[id] = make(map[string]storage.Attr)
	}
	f.files[id][path] = storage.Attr{Mode: 0o100644, Size: size}
}

func (f *fakeBackend) addDir(id, path string, children []string) {
	if f.dirs[id] == nil {
		f.dirs[id] = make(map[string][]string)
	}
	f.dirs[id][path] = children
	if f.files[id] == nil {
		f.files[id] = make(map[string]storage.Attr)
	}
	f.files[id][path] = storage.Attr{Mode: 0o40755}
}

func (f *fakeBackend) Getattr(id, relpath string) (storage.Attr, error) {
	if m, ok := f.files[id]; ok {
		if a, ok := m[relpath]; ok {
			return a, nil
		}
	}
	return storage.Attr{}, assertErr{}
}

func (f *fakeBackend) Readdir(id, relpath string) ([]string, error) {
	if m, ok := f.dirs[id]; ok {
		if names, ok := m[relpath]; ok {
			return names, nil
		}
	}
	return nil, assertErr{}
}

type assertErr struct{}

func (assertErr) Error() string { return "not found" }

func TestResolver_SingleStorageReaddir(t *testing.T) {
	fb := newFakeBackend()
	fb.addDir("s1", "", []string{"a.txt", "b.txt"})

	r := resolver.New(fb)
	r.Mount("/docs", "s1")

	names, err := r.Readdir("/docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestResolver_SyntheticDirectoryMerge(t *testing.T) {
	fb := newFakeBackend()
	fb.addDir("s1", "", []string{"shared", "only-in-1"})
	fb.addDir("s2", "", []string{"shared", "only-in-2"})
	fb.addFile("s1", "shared", 1)
	fb.addFile("s2", "shared", 2)
	fb.addFile("s1", "only-in-1", 1)
	fb.addFile("s2", "only-in-2", 1)

	r := resolver.New(fb)
	r.Mount("/merged", "s1")
	r.Mount("/merged", "s2")

	attr, err := r.Getattr("/merged")
	require.NoError(t, err)
	assert.True(t, attr.IsDir())
	assert.Equal(t, uint32(0o40000|0o555), attr.Mode)

	names, err := r.Readdir("/merged")
	require.NoError(t, err)
	assert.Contains(t, names, "only-in-1")
	assert.Contains(t, names, "only-in-2")
	assert.Contains(t, names, "shared.wl.s1")
	assert.Contains(t, names, "shared.wl.s2")
	assert.NotContains(t, names, "shared")
}

func TestResolver_FileSuffixDisambiguation(t *testing.T) {
	fb := newFakeBackend()
	fb.addDir("s1", "", []string{"note.txt"})
	fb.addDir("s2", "", []string{"note.txt"})
	fb.addFile("s1", "note.txt", 10)
	fb.addFile("s2", "note.txt", 20)

	r := resolver.New(fb)
	r.Mount("/x", "s1")
	r.Mount("/x", "s2")

	attr, err := r.Getattr("/x/note.txt.wl.s1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), attr.Size)

	attr, err = r.Getattr("/x/note.txt.wl.s2")
	require.NoError(t, err)
	assert.Equal(t, int64(20), attr.Size)

	_, err = r.Getattr("/x/note.txt")
	assert.Error(t, err)
}

func TestResolver_UnmountRemovesStorage(t *testing.T) {
	fb := newFakeBackend()
	fb.addDir("s1", "", nil)

	r := resolver.New(fb)
	r.Mount("/x", "s1")
	_, err := r.Readdir("/x")
	require.NoError(t, err)

	r.Unmount("/x", "s1")
	_, err = r.Readdir("/x")
	assert.Error(t, err)
}

func TestResolver_RootReaddirEmpty(t *testing.T) {
	fb := newFakeBackend()
	r := resolver.New(fb)
	names, err := r.Readdir("/")
	require.NoError(t, err)
	assert.Empty(t, names)
}
