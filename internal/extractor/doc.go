package extractor

import (
	"bytes"
	"context"
	"fmt"

	"docuquery-go/pkg/tika"
)

// DOCExtractor delegates the legacy binary Word format to an Apache
// Tika server. The OLE2 container is not worth reimplementing locally.
type DOCExtractor struct {
	client *tika.Client
}

// NewDOCExtractor creates the legacy .doc extraction strategy backed by
// the given Tika client.
func NewDOCExtractor(client *tika.Client) *DOCExtractor {
	return &DOCExtractor{client: client}
}

func (e *DOCExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	text, err := e.client.ExtractText(ctx, bytes.NewReader(data), "document.doc")
	if err != nil {
		return "", fmt.Errorf("tika extraction: %w", err)
	}
	return text, nil
}
