package core

import "context"

// DocumentExtractor turns an uploaded file into plain text. The
// contentType hint helps the extractor pick the right parser.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
