package upload

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	files := []File{
		{Name: "a.pdf", Data: []byte("%PDF-1.4 first")},
		{Name: "b.pdf", Data: bytes.Repeat([]byte{0x00, 0xff, 0x10}, 4096)},
		{Name: "c.pdf", Data: []byte{}},
	}

	paths, err := Stage(dir, files)
	require.NoError(t, err)
	require.Len(t, paths, len(files))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(files))

	for i, f := range files {
		got, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, f.Data, got, f.Name)
	}
}

func TestStageOverwritesSameName(t *testing.T) {
	dir := t.TempDir()
	_, err := Stage(dir, []File{{Name: "doc.pdf", Data: []byte("old")}})
	require.NoError(t, err)
	_, err = Stage(dir, []File{{Name: "doc.pdf", Data: []byte("new")}})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, err := os.ReadFile(filepath.Join(dir, "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestStageNoFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never")
	paths, err := Stage(dir, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "no directory for zero files")
}

func TestStageStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	paths, err := Stage(dir, []File{{Name: "../../escape.pdf", Data: []byte("x")}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.pdf"), paths[0])
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.pdf", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	got, err := List(dir, "*.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.pdf")}, got)

	got, err = List(filepath.Join(dir, "missing"), "*.pdf")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFromMultipart(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, content := range map[string]string{"one.pdf": "first", "two.pdf": "second"} {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	files, err := FromMultipart(req.MultipartForm.File["files"])
	require.NoError(t, err)
	require.Len(t, files, 2)

	got := map[string]string{}
	for _, f := range files {
		got[f.Name] = string(f.Data)
	}
	assert.Equal(t, map[string]string{"one.pdf": "first", "two.pdf": "second"}, got)
}
