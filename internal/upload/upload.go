// Package upload stages user-supplied files on local disk.
package upload

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/helper"
)

// File is an uploaded file: its name and raw bytes.
type File struct {
	Name string
	Data []byte
}

// Stage writes every file verbatim into dir, creating dir if needed.
// A file with the same name as an existing one replaces it.
func Stage(dir string, files []File) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := helper.CreateFolder(dir); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, filepath.Base(f.Name))
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		log.Info().Str("file", f.Name).Int("bytes", len(f.Data)).Msg("Uploaded")
		paths = append(paths, path)
	}
	return paths, nil
}

// FromMultipart reads the content of browser uploads.
func FromMultipart(headers []*multipart.FileHeader) ([]File, error) {
	files := make([]File, 0, len(headers))
	for _, h := range headers {
		data, err := readHeader(h)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: h.Filename, Data: data})
	}
	return files, nil
}

func readHeader(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", h.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// List returns the staged files in dir matching pattern, sorted by name.
// A missing dir yields no files.
func List(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}
