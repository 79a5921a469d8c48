package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/knowbase-io/knowbase/internal/core"
)

// DocconvExtractor converts uploaded files (pdf, docx, html, plain text)
// to text via docconv.
type DocconvExtractor struct {
	readability bool
}

func NewDocconvExtractor(readability bool) *DocconvExtractor {
	return &DocconvExtractor{readability: readability}
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// plain text needs no conversion
	if strings.HasPrefix(contentType, "text/plain") || strings.HasPrefix(contentType, "text/markdown") {
		return string(data), nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.readability)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", contentType, err)
	}
	return res.Body, nil
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)
