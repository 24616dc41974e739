package models

// Metadata keys attached to page documents and chunks.
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaChunk      = "chunk"
	MetaSheet      = "sheet"
)

const (
	// DropdownFallback is returned for an unrecognised summarization option.
	DropdownFallback = "Select an option from the dropdown."

	// PDFMimeType is the only type offered by the upload picker.
	PDFMimeType = "application/pdf"
)
