package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tgdn/stockspec-backend/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to the multipart upload manager. Full daily series
// payloads for long-lived symbols can run into megabytes.
const multipartThreshold = 4 * 1024 * 1024

// Archiver implements domain.PayloadArchiver by uploading raw provider
// response bodies to object storage, partitioned by function kind and symbol.
//
// Archived payloads are the audit trail for ingestion: when a parse decision
// looks wrong after the fact, the original body is still available for replay.
type Archiver struct {
	writer *Writer
}

// NewArchiver creates an Archiver that uploads through the given writer.
func NewArchiver(w *Writer) *Archiver {
	return &Archiver{writer: w}
}

// ArchivePayload stores one raw response body at
// raw/{kind}/{symbol}/{timestamp}.{ext}. The extension and content type follow
// the provider function: OVERVIEW responds with JSON, everything else with CSV.
func (a *Archiver) ArchivePayload(ctx context.Context, kind, symbol string, fetchedAt time.Time, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	ext, contentType := "csv", "text/csv"
	if kind == "overview" {
		ext, contentType = "json", "application/json"
	}

	path := fmt.Sprintf("raw/%s/%s/%s.%s",
		kind, symbol, fetchedAt.UTC().Format("2006-01-02T150405Z"), ext)

	if int64(len(payload)) > multipartThreshold {
		if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(payload), multipartThreshold); err != nil {
			return fmt.Errorf("s3blob: archive payload %s: %w", path, err)
		}
		return nil
	}

	if err := a.writer.Put(ctx, path, bytes.NewReader(payload), contentType); err != nil {
		return fmt.Errorf("s3blob: archive payload %s: %w", path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PayloadArchiver = (*Archiver)(nil)
