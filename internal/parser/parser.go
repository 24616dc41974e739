package parser

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
	"github.com/xuri/excelize/v2"

	"pdf-rag/internal/models"
	"pdf-rag/internal/upload"
)

// ErrUnsupportedFormat is returned by LoadFile for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Loader turns a file path into page-level documents.
type Loader interface {
	Load(ctx context.Context, path string) ([]schema.Document, error)
}

// FileLoader dispatches on the file extension.
type FileLoader struct{}

func (FileLoader) Load(_ context.Context, path string) ([]schema.Document, error) {
	return LoadFile(path)
}

// LoadFile loads path into one document per page (or slide, or sheet).
func LoadFile(path string) ([]schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return LoadPDF(path)
	case ".docx":
		return loadDOCX(path)
	case ".pptx":
		return loadPPTX(path)
	case ".xlsx":
		return loadXLSX(path)
	case ".txt", ".md":
		return loadText(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// LoadDirectory loads every file in dir matching pattern, in name order.
func LoadDirectory(dir, pattern string) ([]schema.Document, error) {
	paths, err := upload.List(dir, pattern)
	if err != nil {
		return nil, err
	}
	return LoadFiles(paths)
}

// LoadFiles loads every path in order and concatenates the pages.
func LoadFiles(paths []string) ([]schema.Document, error) {
	var docs []schema.Document
	for _, p := range paths {
		pages, err := LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", p, err)
		}
		log.Debug().Str("file", p).Int("pages", len(pages)).Msg("Loaded document")
		docs = append(docs, pages...)
	}
	return docs, nil
}

// LoadPDF returns the plain text of every page of the PDF at path.
func LoadPDF(path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf %s: %w", path, err)
	}

	numPages := reader.NumPage()
	docs := make([]schema.Document, 0, numPages)
	// fonts are shared across pages; later pages often only reference them
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d of %s: %w", i, path, err)
		}
		docs = append(docs, pageDocument(text, path, i, numPages))
	}
	return docs, nil
}

func pageDocument(text, path string, page, total int) schema.Document {
	return schema.Document{
		PageContent: text,
		Metadata: map[string]any{
			models.MetaSource:     path,
			models.MetaPage:       page,
			models.MetaTotalPages: total,
		},
	}
}

func loadDOCX(path string) ([]schema.Document, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var paragraphs []string
	for _, p := range strings.Split(r.Editable().GetContent(), "</w:p>") {
		text := strings.TrimSpace(extractTagText(p, "w:t", ""))
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	if len(paragraphs) == 0 {
		return nil, nil
	}
	// DOCX has no page numbers
	return []schema.Document{pageDocument(strings.Join(paragraphs, "\n"), path, 1, 1)}, nil
}

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func loadPPTX(path string) ([]schema.Document, error) {
	f, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(extractTagText(string(data), "a:t", " "))
		if text != "" {
			slides = append(slides, slide{num: num, text: text})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	docs := make([]schema.Document, 0, len(slides))
	for _, s := range slides {
		docs = append(docs, pageDocument(s.text, path, s.num, len(slides)))
	}
	return docs, nil
}

func loadXLSX(path string) ([]schema.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var docs []schema.Document
	for i, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
		}
		var text strings.Builder
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		if strings.TrimSpace(text.String()) == "" {
			continue
		}
		doc := pageDocument(fmt.Sprintf("## Sheet: %s\n%s", name, text.String()), path, i+1, len(sheets))
		doc.Metadata[models.MetaSheet] = name
		docs = append(docs, doc)
	}
	return docs, nil
}

func loadText(path string) ([]schema.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return []schema.Document{pageDocument(string(data), path, 1, 1)}, nil
}

// extractTagText concatenates the character data of every <tag>...</tag>
// element, joined by sep. Attributes on the opening tag are tolerated.
func extractTagText(xmlContent, tag, sep string) string {
	open, closing := "<"+tag, "</"+tag+">"
	var text strings.Builder
	rest := xmlContent
	for {
		i := strings.Index(rest, open)
		if i < 0 {
			break
		}
		rest = rest[i+len(open):]
		// skip <w:tab/>, <w:tbl> and friends that share the prefix
		if rest == "" || (rest[0] != '>' && rest[0] != ' ') {
			continue
		}
		gt := strings.IndexByte(rest, '>')
		if gt < 0 || (gt > 0 && rest[gt-1] == '/') {
			continue
		}
		rest = rest[gt+1:]
		end := strings.Index(rest, closing)
		if end < 0 {
			break
		}
		if text.Len() > 0 {
			text.WriteString(sep)
		}
		text.WriteString(unescapeXML(rest[:end]))
		rest = rest[end+len(closing):]
	}
	return text.String()
}

var xmlUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlUnescaper.Replace(s)
}
