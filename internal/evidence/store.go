package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

const (
	cidPrefix   = "sha256-"
	blobPrefix  = "evidence/"
	contentType = "application/json"
)

// ContentID computes the content address of a package: the hex SHA-256 of
// its canonical JSON form with Metadata zeroed. Changing Metadata after
// storage never changes the address.
func ContentID(pkg *domain.EvidencePackage) (string, error) {
	body, err := canonicalJSON(pkg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return cidPrefix + hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(pkg *domain.EvidencePackage) ([]byte, error) {
	clean := *pkg
	clean.Metadata = domain.EvidenceMetadata{}
	body, err := json.Marshal(&clean)
	if err != nil {
		return nil, fmt.Errorf("evidence: encode package: %w", err)
	}
	return body, nil
}

// Store is the content-addressed evidence store over object storage. A
// CIDCache makes re-storing identical evidence for a market a no-op.
type Store struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	cids   domain.CIDCache
	logger *slog.Logger

	maxAttempts int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration)
}

// NewStore creates the evidence store. cids may be nil, which disables
// upload deduplication but nothing else.
func NewStore(writer domain.BlobWriter, reader domain.BlobReader, cids domain.CIDCache, logger *slog.Logger) *Store {
	return &Store{
		writer:      writer,
		reader:      reader,
		cids:        cids,
		logger:      logger.With(slog.String("component", "evidence_store")),
		maxAttempts: 3,
		retryDelay:  2 * time.Second,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

// Store uploads the package under its content address and returns the
// content ID. The package's Metadata.ContentID is filled in on success.
func (s *Store) Store(ctx context.Context, pkg *domain.EvidencePackage) (string, error) {
	body, err := canonicalJSON(pkg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])
	cid := cidPrefix + digest

	if s.cids != nil {
		if cached, err := s.cids.GetCID(ctx, pkg.MarketID, digest); err == nil && cached != "" {
			s.logger.DebugContext(ctx, "evidence already stored",
				slog.String("market_id", pkg.MarketID), slog.String("cid", cached))
			pkg.Metadata.ContentID = cached
			pkg.Metadata.SizeBytes = int64(len(body))
			return cached, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.writer.Put(ctx, blobPath(cid), bytes.NewReader(body), contentType)
		if lastErr == nil {
			break
		}
		s.logger.WarnContext(ctx, "evidence upload failed",
			slog.String("market_id", pkg.MarketID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt < s.maxAttempts {
			s.sleep(ctx, s.retryDelay)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("evidence: upload %s: %v: %w", cid, lastErr, domain.ErrStorageUpload)
	}

	if s.cids != nil {
		if err := s.cids.SetCID(ctx, pkg.MarketID, digest, cid); err != nil {
			s.logger.WarnContext(ctx, "cid cache write failed", slog.String("error", err.Error()))
		}
	}

	pkg.Metadata.ContentID = cid
	pkg.Metadata.SizeBytes = int64(len(body))
	s.logger.InfoContext(ctx, "evidence stored",
		slog.String("market_id", pkg.MarketID), slog.String("cid", cid), slog.Int("bytes", len(body)))
	return cid, nil
}

// Retrieve fetches a stored package and verifies its bytes still hash to the
// content ID before decoding.
func (s *Store) Retrieve(ctx context.Context, contentID string) (*domain.EvidencePackage, error) {
	digest, ok := strings.CutPrefix(contentID, cidPrefix)
	if !ok {
		return nil, fmt.Errorf("evidence: malformed content id %q: %w", contentID, domain.ErrNotFound)
	}

	rc, err := s.reader.Get(ctx, blobPath(contentID))
	if err != nil {
		return nil, fmt.Errorf("evidence: fetch %s: %w", contentID, err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("evidence: read %s: %w", contentID, err)
	}

	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != digest {
		return nil, fmt.Errorf("evidence: digest mismatch for %s: %w", contentID, errTampered)
	}

	var pkg domain.EvidencePackage
	if err := json.Unmarshal(body, &pkg); err != nil {
		return nil, fmt.Errorf("evidence: decode %s: %w", contentID, err)
	}
	pkg.Metadata.ContentID = contentID
	return &pkg, nil
}

// Verify reports whether the content ID resolves to a stored object.
func (s *Store) Verify(ctx context.Context, contentID string) (bool, error) {
	if !strings.HasPrefix(contentID, cidPrefix) {
		return false, nil
	}
	return s.reader.Exists(ctx, blobPath(contentID))
}

func blobPath(cid string) string { return blobPrefix + cid + ".json" }

var errTampered = errors.New("stored bytes do not match content id")

// Compile-time interface check.
var _ domain.EvidenceStore = (*Store)(nil)
