package database

import (
	"context"
	"time"

	"github.com/HarshTuring/docklens/internal/entity"
)

// VersionRepository is the durable version ledger: one document per
// source image, accumulating its distinct processed variants. It is the
// source of truth; the cache is only an accelerator.
type VersionRepository interface {
	// SaveUpload upserts the source image metadata keyed by content hash.
	// The first intake wins; a repeated upload returns the existing record.
	SaveUpload(ctx context.Context, src *entity.SourceImage) (*entity.SourceImage, error)

	// RecordVersion is idempotent on fingerprint: an already recorded
	// fingerprint returns the existing version unchanged.
	RecordVersion(ctx context.Context, contentHash string, version entity.ProcessedVersion) (*entity.ProcessedVersion, error)

	// ListVersions returns the processed versions of one source image,
	// ordered by creation time ascending.
	ListVersions(ctx context.Context, contentHash string) ([]entity.ProcessedVersion, error)

	// History returns recent source documents, optionally filtered by
	// operation name and source type.
	History(ctx context.Context, limit int64, operation, sourceType string) ([]entity.SourceImage, error)

	// FindByURL reports whether an image fetched from this URL was seen
	// before.
	FindByURL(ctx context.Context, sourceURL string) (*entity.SourceImage, error)

	Ping(ctx context.Context) error
}

// CacheRepository is the fingerprint -> blob locator cache with TTL.
// A miss is normal; unavailability degrades to always-miss.
type CacheRepository interface {
	Get(ctx context.Context, fingerprint string) (*entity.CacheEntry, error)
	Set(ctx context.Context, fingerprint string, entry *entity.CacheEntry, ttl time.Duration) error
	Delete(ctx context.Context, fingerprint string) error
	Ping(ctx context.Context) error
}
