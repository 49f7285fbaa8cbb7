package service

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/HarshTuring/docklens/internal/entity"
	"github.com/HarshTuring/docklens/internal/pkg/fingerprint"
	"github.com/HarshTuring/docklens/internal/pkg/processor"
)

// ProcessedEvent is published to kafka after a version is recorded.
type ProcessedEvent struct {
	ContentHash string    `json:"content_hash"`
	Fingerprint string    `json:"fingerprint"`
	Operations  []string  `json:"operations"`
	StorageKey  string    `json:"storage_key"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (s *imageService) Upload(ctx context.Context, input UploadInput) (*entity.UploadResponse, error) {
	if err := s.validateImage(input.Data); err != nil {
		return nil, err
	}

	contentHash := fingerprint.ContentHash(input.Data)
	phash, err := fingerprint.PerceptualHashBytes(input.Data)
	if err != nil {
		return nil, entity.ErrInvalidImageType
	}

	// Уникальное имя, исходное сохраняем в метаданных
	unique := uuid.New().String()[:8] + "_" + filepath.Base(input.Filename)
	storageKey := "original/" + contentHash + "/" + unique

	if err := s.storage.Save(ctx, storageKey, "", input.Data); err != nil {
		return nil, err
	}

	stored, err := s.versions.SaveUpload(ctx, &entity.SourceImage{
		ContentHash:      contentHash,
		PerceptualHash:   phash,
		Filename:         unique,
		OriginalFilename: input.Filename,
		SourceType:       entity.SourceUpload,
		StorageKey:       storageKey,
		UploadDate:       time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	return &entity.UploadResponse{
		Message:        "Image successfully uploaded",
		MetadataID:     stored.ID,
		ContentHash:    stored.ContentHash,
		PerceptualHash: stored.PerceptualHash,
		Filename:       stored.Filename,
	}, nil
}

func (s *imageService) Transform(ctx context.Context, input TransformInput) (*TransformOutput, error) {
	if !input.Auth.Allowed {
		return nil, entity.ErrUnauthorized
	}
	if err := s.validateImage(input.Data); err != nil {
		return nil, err
	}

	contentHash := fingerprint.ContentHash(input.Data)

	// Валидация набора операций происходит здесь же: невалидный набор
	// не доходит ни до кэша, ни до обработки
	fp, err := fingerprint.Compute(contentHash, input.Operations)
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{
		"content_hash": contentHash[:12],
		"fingerprint":  fp[:12],
		"operations":   input.Operations.Names(),
	})

	if output, ok := s.fromCache(ctx, fp, contentHash, log); ok {
		return output, nil
	}

	// Точного совпадения нет — возможно, тот же кадр уже обрабатывали
	// в другой кодировке
	if output, ok := s.fromSimilar(ctx, input.Data, input.Operations, contentHash, log); ok {
		return output, nil
	}

	result, err := s.processor.Apply(input.Data, input.Operations)
	if err != nil {
		// Никаких записей в кэш и ledger при ошибке обработки
		return nil, err
	}

	outputHash := fingerprint.ContentHash(result.Data)
	storageKey := "processed/" + fp + extension(result.Format)

	if err := s.storage.Save(ctx, storageKey, processor.ContentType(result.Format), result.Data); err != nil {
		// Блоб не сохранился: изображение отдаем, но без кэша и ledger
		log.Errorf("failed to store processed blob: %v", err)
		return s.output(result, fp, contentHash, false), nil
	}

	s.recordVersion(ctx, input, contentHash, fp, storageKey, outputHash, result, log)

	entry := &entity.CacheEntry{
		StorageKey:   storageKey,
		OutputFormat: result.Format,
		OutputHash:   outputHash,
	}
	if err := s.cache.Set(ctx, fp, entry, s.config.CacheTTL); err != nil {
		log.Warnf("cache write failed: %v", err)
	}

	return s.output(result, fp, contentHash, false), nil
}

func (s *imageService) TransformFromURL(ctx context.Context, rawURL string, t entity.Transformations, auth entity.AuthDecision) (*TransformOutput, error) {
	if !auth.Allowed {
		return nil, entity.ErrUnauthorized
	}

	ops, err := t.OperationSet()
	if err != nil {
		return nil, err
	}

	// Известный URL с готовым результатом отдается без повторного
	// скачивания
	if src, err := s.versions.FindByURL(ctx, rawURL); err == nil {
		if fp, err := fingerprint.Compute(src.ContentHash, ops); err == nil {
			log := logrus.WithFields(logrus.Fields{
				"source_url":  rawURL,
				"fingerprint": fp[:12],
			})
			if output, ok := s.fromCache(ctx, fp, src.ContentHash, log); ok {
				return output, nil
			}
		}
	}

	data, filename, err := s.fetcher.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	return s.Transform(ctx, TransformInput{
		Data:       data,
		Filename:   filename,
		SourceType: entity.SourceURL,
		SourceURL:  rawURL,
		Operations: ops,
		Auth:       auth,
	})
}

// fromCache serves a hit from the result cache. Any cache failure
// degrades to a miss; a stale locator pointing at evicted storage falls
// through to recomputation as well.
func (s *imageService) fromCache(ctx context.Context, fp, contentHash string, log *logrus.Entry) (*TransformOutput, bool) {
	entry, err := s.cache.Get(ctx, fp)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("cache unavailable, recomputing: %v", err)
		}
		return nil, false
	}

	data, err := s.storage.Get(ctx, entry.StorageKey)
	if err != nil {
		log.Warnf("cached locator unreadable, recomputing: %v", err)
		return nil, false
	}

	log.Info("result cache hit")
	return &TransformOutput{
		Data:        data,
		Format:      entry.OutputFormat,
		ContentType: processor.ContentType(entry.OutputFormat),
		Fingerprint: fp,
		ContentHash: contentHash,
		CacheHit:    true,
	}, true
}

// Близнецы по перцептивному хэшу считаются одним изображением
const (
	similarityThreshold = 0.97
	similarScanLimit    = 50
)

// fromSimilar looks for a visually identical source that was already
// processed with the same operations: the same frame re-encoded (png vs
// jpeg, different quality) hashes to a different content hash but a
// near-equal perceptual hash. Best effort on top of recent ledger
// entries; any failure just means a normal recompute.
func (s *imageService) fromSimilar(ctx context.Context, data []byte, ops entity.OperationSet, contentHash string, log *logrus.Entry) (*TransformOutput, bool) {
	phash, err := fingerprint.PerceptualHashBytes(data)
	if err != nil {
		return nil, false
	}

	candidates, err := s.versions.History(ctx, similarScanLimit, "", "")
	if err != nil {
		return nil, false
	}

	for i := range candidates {
		src := &candidates[i]
		if src.ContentHash == contentHash || src.PerceptualHash == "" {
			continue
		}
		if fingerprint.Similarity(phash, src.PerceptualHash) < similarityThreshold {
			continue
		}

		fp, err := fingerprint.Compute(src.ContentHash, ops)
		if err != nil {
			return nil, false
		}
		if output, ok := s.fromCache(ctx, fp, src.ContentHash, log); ok {
			log.WithField("similar_to", src.ContentHash[:12]).Info("near-duplicate cache hit")
			return output, true
		}
	}

	return nil, false
}

// recordVersion writes the source document and the processed version to
// the ledger. Best effort: a ledger failure is logged, the freshly
// computed image is still returned to the caller.
func (s *imageService) recordVersion(ctx context.Context, input TransformInput, contentHash, fp, storageKey, outputHash string, result *processor.Result, log *logrus.Entry) {
	phash, err := fingerprint.PerceptualHashBytes(input.Data)
	if err != nil {
		phash = ""
	}

	sourceType := input.SourceType
	if sourceType == "" {
		sourceType = entity.SourceUpload
	}

	unique := uuid.New().String()[:8] + "_" + filepath.Base(input.Filename)
	if _, err := s.versions.SaveUpload(ctx, &entity.SourceImage{
		ContentHash:      contentHash,
		PerceptualHash:   phash,
		Filename:         unique,
		OriginalFilename: input.Filename,
		SourceType:       sourceType,
		SourceURL:        input.SourceURL,
		StorageKey:       "original/" + contentHash + "/" + unique,
		UploadDate:       time.Now().UTC(),
	}); err != nil {
		log.Errorf("ledger source write failed, returning image anyway: %v", err)
		return
	}

	version := entity.ProcessedVersion{
		Fingerprint:   fp,
		Operations:    input.Operations,
		StorageKey:    storageKey,
		OutputHash:    outputHash,
		OutputFormat:  result.Format,
		ProcessedDate: time.Now().UTC(),
	}
	if _, err := s.versions.RecordVersion(ctx, contentHash, version); err != nil {
		log.Errorf("ledger version write failed, returning image anyway: %v", err)
		return
	}

	if s.producer != nil {
		_ = s.producer.SendMessage(s.config.KafkaTopic, ProcessedEvent{
			ContentHash: contentHash,
			Fingerprint: fp,
			Operations:  input.Operations.Names(),
			StorageKey:  storageKey,
			ProcessedAt: version.ProcessedDate,
		})
	}
}

func (s *imageService) Versions(ctx context.Context, contentHash string) (*entity.VersionsResponse, error) {
	versions, err := s.versions.ListVersions(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	return &entity.VersionsResponse{
		ContentHash: contentHash,
		Count:       len(versions),
		Versions:    versions,
	}, nil
}

func (s *imageService) History(ctx context.Context, limit int64, operation, sourceType string) ([]entity.SourceImage, error) {
	return s.versions.History(ctx, limit, operation, sourceType)
}

func (s *imageService) Health(ctx context.Context) map[string]string {
	status := map[string]string{"status": "ok"}

	if err := s.cache.Ping(ctx); err != nil {
		status["redis"] = "unreachable"
		status["status"] = "degraded"
	} else {
		status["redis"] = "ok"
	}

	if err := s.versions.Ping(ctx); err != nil {
		status["mongo"] = "unreachable"
		status["status"] = "degraded"
	} else {
		status["mongo"] = "ok"
	}

	return status
}

func (s *imageService) validateImage(data []byte) error {
	if len(data) == 0 {
		return entity.ErrEmptyImage
	}
	if int64(len(data)) > s.config.MaxUploadSize {
		return entity.ErrImageTooLarge
	}
	return nil
}

func extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	default:
		return ".bin"
	}
}

func (s *imageService) output(result *processor.Result, fp, contentHash string, hit bool) *TransformOutput {
	return &TransformOutput{
		Data:        result.Data,
		Format:      result.Format,
		ContentType: processor.ContentType(result.Format),
		Fingerprint: fp,
		ContentHash: contentHash,
		AppliedOps:  result.AppliedOps,
		CacheHit:    hit,
	}
}
