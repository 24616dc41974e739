package models

import (
	"fmt"
	"path/filepath"

	"github.com/tmc/langchaingo/schema"
)

// DocumentLabel renders the source file and page of a document.
func DocumentLabel(doc schema.Document) string {
	src, _ := doc.Metadata[MetaSource].(string)
	if src == "" {
		return ""
	}
	name := filepath.Base(src)
	if page, ok := doc.Metadata[MetaPage]; ok {
		return fmt.Sprintf("%s p.%v", name, page)
	}
	return name
}
