package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// AttemptArchiveStore is the slice of the attempt store the archiver needs:
// time-ranged reads plus deletion of what was archived.
type AttemptArchiveStore interface {
	// ListBefore returns all attempts recorded strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Attempt, error)
	// DeleteBefore removes all attempts recorded strictly before the cutoff
	// and returns the number deleted.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves old resolution attempts out of the database into monthly
// JSONL objects next to the evidence they reference. Evidence itself is
// content-addressed and never archived or rewritten.
type Archiver struct {
	writer   domain.BlobWriter
	attempts AttemptArchiveStore
	logger   *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, attempts AttemptArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:   writer,
		attempts: attempts,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveAttempts serializes every attempt before the cutoff to JSONL,
// uploads the file at archive/attempts/YYYY-MM.jsonl, then deletes the
// archived rows. Returns the number of archived records.
func (a *Archiver) ArchiveAttempts(ctx context.Context, before time.Time) (int64, error) {
	attempts, err := a.attempts.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive attempts query: %w", err)
	}
	if len(attempts) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(attempts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive attempts marshal: %w", err)
	}

	path := archivePath("attempts", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive attempts upload: %w", err)
	}

	deleted, err := a.attempts.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(attempts)), fmt.Errorf("s3blob: archive attempts delete: %w", err)
	}

	a.logger.InfoContext(ctx, "attempts archived",
		slog.String("path", path),
		slog.Int("archived", len(attempts)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(attempts)), nil
}

// archivePath builds the object key for an archive month, e.g.
//
//	archive/attempts/2026-07.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
