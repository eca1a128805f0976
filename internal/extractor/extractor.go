// Package extractor turns uploaded document bytes into plain UTF-8
// text, one strategy per supported file type.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/log"
)

// Supported document types, matched against the lowercased file
// extension.
const (
	TypePDF  = "pdf"
	TypeDOCX = "docx"
	TypeDOC  = "doc"
	TypeEML  = "eml"
)

// Extractor converts one document format into plain text. Extraction is
// a pure transform: the input bytes are never mutated.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Registry dispatches extraction by detected document type.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry builds a registry over the given strategies, keyed by
// type constant.
func NewRegistry(extractors map[string]Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// DetectType maps a file name to a document type. The empty string
// means the type is unsupported.
func DetectType(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	switch ext {
	case TypePDF, TypeDOCX, TypeDOC, TypeEML:
		return ext
	}
	return ""
}

// Extract detects the document type from fileName and runs the matching
// strategy. Unsupported types fail fast with ErrUnsupportedFileType;
// an empty extraction result is ErrEmptyDocument; decoding failures are
// wrapped in ErrExtractionFailed with the original error preserved.
func (r *Registry) Extract(ctx context.Context, fileName string, data []byte) (string, error) {
	docType := DetectType(fileName)
	if docType == "" {
		return "", fmt.Errorf("%w: %s", model.ErrUnsupportedFileType, filepath.Ext(fileName))
	}
	ex, ok := r.extractors[docType]
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrUnsupportedFileType, docType)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", model.ErrEmptyDocument, fileName)
	}

	log.Infof("[Extractor] extracting text, file: %s, type: %s, size: %d", fileName, docType, len(data))
	text, err := ex.Extract(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", model.ErrExtractionFailed, fileName, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s yielded no text", model.ErrEmptyDocument, fileName)
	}
	return text, nil
}
