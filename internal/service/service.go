package service

import (
	"context"
	"time"

	"github.com/HarshTuring/docklens/internal/database"
	"github.com/HarshTuring/docklens/internal/entity"
	"github.com/HarshTuring/docklens/internal/pkg/fetcher"
	"github.com/HarshTuring/docklens/internal/pkg/kafka"
	"github.com/HarshTuring/docklens/internal/pkg/processor"
	"github.com/HarshTuring/docklens/internal/pkg/storage"
)

// UploadInput carries one intake request.
type UploadInput struct {
	Data     []byte
	Filename string
}

// TransformInput carries one transformation request. The auth decision
// is an explicit per-request value: there is no ambient session state.
type TransformInput struct {
	Data       []byte
	Filename   string
	SourceType string
	SourceURL  string
	Operations entity.OperationSet
	Auth       entity.AuthDecision
}

// TransformOutput is the processed blob plus its metadata.
type TransformOutput struct {
	Data        []byte
	Format      string
	ContentType string
	Fingerprint string
	ContentHash string
	AppliedOps  []string
	CacheHit    bool
}

// ImageService is the request orchestrator: validate, authorize,
// fingerprint, check cache, transform on miss, write through to cache
// and ledger, respond.
type ImageService interface {
	Upload(ctx context.Context, input UploadInput) (*entity.UploadResponse, error)
	Transform(ctx context.Context, input TransformInput) (*TransformOutput, error)
	TransformFromURL(ctx context.Context, rawURL string, t entity.Transformations, auth entity.AuthDecision) (*TransformOutput, error)
	Versions(ctx context.Context, contentHash string) (*entity.VersionsResponse, error)
	History(ctx context.Context, limit int64, operation, sourceType string) ([]entity.SourceImage, error)
	Health(ctx context.Context) map[string]string
}

type ServiceConfig struct {
	CacheTTL      time.Duration
	MaxUploadSize int64
	KafkaTopic    string
}

type imageService struct {
	versions  database.VersionRepository
	cache     database.CacheRepository
	storage   storage.FileStorage
	processor processor.ImageProcessor
	fetcher   fetcher.Fetcher
	producer  kafka.Producer
	config    ServiceConfig
}

func NewImageService(
	versions database.VersionRepository,
	cache database.CacheRepository,
	fileStorage storage.FileStorage,
	imgProcessor processor.ImageProcessor,
	urlFetcher fetcher.Fetcher,
	producer kafka.Producer,
	config ServiceConfig,
) ImageService {
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Hour
	}
	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = 10 << 20
	}
	return &imageService{
		versions:  versions,
		cache:     cache,
		storage:   fileStorage,
		processor: imgProcessor,
		fetcher:   urlFetcher,
		producer:  producer,
		config:    config,
	}
}
