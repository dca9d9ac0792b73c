package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter writes objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// PayloadArchiver stores raw provider payloads for audit and replay. Archival
// is best-effort: ingestion never fails because an archive write failed.
type PayloadArchiver interface {
	// ArchivePayload stores one raw response body. Kind names the provider
	// function that produced it (e.g. "daily", "overview").
	ArchivePayload(ctx context.Context, kind, symbol string, fetchedAt time.Time, payload []byte) error
}
