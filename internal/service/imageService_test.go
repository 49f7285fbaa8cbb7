package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshTuring/docklens/internal/entity"
	"github.com/HarshTuring/docklens/internal/pkg/kafka"
	"github.com/HarshTuring/docklens/internal/pkg/processor"
)

type mockVersionRepo struct {
	sources      map[string]*entity.SourceImage
	recordCalled int
	saveErr      error
	recordErr    error
}

func newMockVersionRepo() *mockVersionRepo {
	return &mockVersionRepo{sources: make(map[string]*entity.SourceImage)}
}

func (m *mockVersionRepo) SaveUpload(_ context.Context, src *entity.SourceImage) (*entity.SourceImage, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	if existing, ok := m.sources[src.ContentHash]; ok {
		return existing, nil
	}
	stored := *src
	stored.ID = "id-" + src.ContentHash[:8]
	m.sources[src.ContentHash] = &stored
	return &stored, nil
}

func (m *mockVersionRepo) RecordVersion(_ context.Context, contentHash string, version entity.ProcessedVersion) (*entity.ProcessedVersion, error) {
	m.recordCalled++
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	src, ok := m.sources[contentHash]
	if !ok {
		return nil, entity.ErrImageNotFound
	}
	for i := range src.ProcessedImages {
		if src.ProcessedImages[i].Fingerprint == version.Fingerprint {
			return &src.ProcessedImages[i], nil
		}
	}
	src.ProcessedImages = append(src.ProcessedImages, version)
	return &version, nil
}

func (m *mockVersionRepo) ListVersions(_ context.Context, contentHash string) ([]entity.ProcessedVersion, error) {
	src, ok := m.sources[contentHash]
	if !ok {
		return nil, entity.ErrImageNotFound
	}
	return src.ProcessedImages, nil
}

func (m *mockVersionRepo) History(_ context.Context, _ int64, _, _ string) ([]entity.SourceImage, error) {
	var out []entity.SourceImage
	for _, src := range m.sources {
		out = append(out, *src)
	}
	return out, nil
}

func (m *mockVersionRepo) FindByURL(_ context.Context, sourceURL string) (*entity.SourceImage, error) {
	for _, src := range m.sources {
		if src.SourceURL == sourceURL {
			return src, nil
		}
	}
	return nil, entity.ErrImageNotFound
}

func (m *mockVersionRepo) Ping(_ context.Context) error { return nil }

type mockCache struct {
	entries map[string]*entity.CacheEntry
	getErr  error
	setErr  error
	sets    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*entity.CacheEntry)}
}

func (m *mockCache) Get(_ context.Context, fp string) (*entity.CacheEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if entry, ok := m.entries[fp]; ok {
		return entry, nil
	}
	return nil, redis.Nil
}

func (m *mockCache) Set(_ context.Context, fp string, entry *entity.CacheEntry, _ time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.entries[fp] = entry
	return nil
}

func (m *mockCache) Delete(_ context.Context, fp string) error {
	delete(m.entries, fp)
	return nil
}

func (m *mockCache) Ping(_ context.Context) error { return nil }

type mockStorage struct {
	blobs   map[string][]byte
	saveErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{blobs: make(map[string][]byte)}
}

func (m *mockStorage) Save(_ context.Context, key, _ string, data []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.blobs[key] = data
	return nil
}

func (m *mockStorage) Get(_ context.Context, key string) ([]byte, error) {
	if data, ok := m.blobs[key]; ok {
		return data, nil
	}
	return nil, errors.New("no such blob")
}

func (m *mockStorage) Delete(_ context.Context, key string) error {
	delete(m.blobs, key)
	return nil
}

func (m *mockStorage) Exists(_ context.Context, key string) bool {
	_, ok := m.blobs[key]
	return ok
}

type mockProcessor struct {
	applyCalled int
}

func (m *mockProcessor) Apply(data []byte, ops entity.OperationSet) (*processor.Result, error) {
	m.applyCalled++
	return &processor.Result{
		Data:       append([]byte("processed:"), data[:8]...),
		Format:     "png",
		AppliedOps: ops.Names(),
		Width:      10,
		Height:     10,
	}, nil
}

type mockFetcher struct {
	data  []byte
	err   error
	calls int
}

func (m *mockFetcher) Download(_ context.Context, _ string) ([]byte, string, error) {
	m.calls++
	if m.err != nil {
		return nil, "", m.err
	}
	return m.data, "remote.png", nil
}

type fixture struct {
	service   ImageService
	versions  *mockVersionRepo
	cache     *mockCache
	storage   *mockStorage
	processor *mockProcessor
	fetcher   *mockFetcher
}

func newFixture() *fixture {
	f := &fixture{
		versions:  newMockVersionRepo(),
		cache:     newMockCache(),
		storage:   newMockStorage(),
		processor: &mockProcessor{},
		fetcher:   &mockFetcher{},
	}
	f.service = NewImageService(
		f.versions, f.cache, f.storage, f.processor, f.fetcher,
		kafka.NewNoopProducer(),
		ServiceConfig{CacheTTL: time.Minute, MaxUploadSize: 10 << 20, KafkaTopic: "image-processed"},
	)
	return f
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func allowed() entity.AuthDecision {
	return entity.AuthDecision{Allowed: true, Reason: entity.ReasonValidated, UserID: "u-1"}
}

func grayscaleSet(t *testing.T) entity.OperationSet {
	t.Helper()
	set, err := (&entity.Transformations{Grayscale: true}).OperationSet()
	require.NoError(t, err)
	return set
}

func TestTransformUnauthorized(t *testing.T) {
	f := newFixture()

	_, err := f.service.Transform(context.Background(), TransformInput{
		Data:       testImage(t),
		Operations: grayscaleSet(t),
		Auth:       entity.AuthDecision{Allowed: false, Reason: entity.ReasonDenied},
	})

	assert.ErrorIs(t, err, entity.ErrUnauthorized)
	assert.Zero(t, f.processor.applyCalled, "processor must not run for rejected requests")
}

func TestTransformMissThenHit(t *testing.T) {
	f := newFixture()
	data := testImage(t)

	input := TransformInput{
		Data:       data,
		Filename:   "cat.png",
		SourceType: entity.SourceUpload,
		Operations: grayscaleSet(t),
		Auth:       allowed(),
	}

	// Первый запрос — промах, полная обработка
	first, err := f.service.Transform(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, f.processor.applyCalled)
	assert.Equal(t, 1, f.cache.sets)

	// Второй идентичный запрос отдается из кэша без обработки
	second, err := f.service.Transform(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, f.processor.applyCalled, "cache hit must not invoke the transform engine")
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Data, second.Data)
}

func TestTransformRecordsSingleVersion(t *testing.T) {
	f := newFixture()
	data := testImage(t)

	input := TransformInput{
		Data:       data,
		Filename:   "cat.png",
		Operations: grayscaleSet(t),
		Auth:       allowed(),
	}

	out, err := f.service.Transform(context.Background(), input)
	require.NoError(t, err)

	versions, err := f.service.Versions(context.Background(), out.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, 1, versions.Count)
	assert.Equal(t, out.Fingerprint, versions.Versions[0].Fingerprint)
}

// TestTransformDistinctVersions: два разных набора операций дают две
// версии одного исходника
func TestTransformDistinctVersions(t *testing.T) {
	f := newFixture()
	data := testImage(t)

	grayscale, err := (&entity.Transformations{Grayscale: true}).OperationSet()
	require.NoError(t, err)
	grayscaleBlur, err := (&entity.Transformations{
		Grayscale: true,
		Blur:      &entity.BlurOption{Apply: true, Radius: 5},
	}).OperationSet()
	require.NoError(t, err)

	first, err := f.service.Transform(context.Background(), TransformInput{
		Data: data, Operations: grayscale, Auth: allowed(),
	})
	require.NoError(t, err)

	second, err := f.service.Transform(context.Background(), TransformInput{
		Data: data, Operations: grayscaleBlur, Auth: allowed(),
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)

	versions, err := f.service.Versions(context.Background(), first.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, 2, versions.Count)
}

// TestTransformCacheUnavailable: недоступный кэш — это всегда промах
func TestTransformCacheUnavailable(t *testing.T) {
	f := newFixture()
	f.cache.getErr = errors.New("connection refused")
	f.cache.setErr = errors.New("connection refused")

	out, err := f.service.Transform(context.Background(), TransformInput{
		Data:       testImage(t),
		Operations: grayscaleSet(t),
		Auth:       allowed(),
	})

	require.NoError(t, err)
	assert.False(t, out.CacheHit)
	assert.Equal(t, 1, f.processor.applyCalled)
}

// TestTransformLedgerUnavailable: изображение возвращается даже если
// ledger не записался
func TestTransformLedgerUnavailable(t *testing.T) {
	f := newFixture()
	f.versions.saveErr = errors.New("mongo down")

	out, err := f.service.Transform(context.Background(), TransformInput{
		Data:       testImage(t),
		Operations: grayscaleSet(t),
		Auth:       allowed(),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, out.Data)
}

// TestTransformStaleCacheEntry: протухший локатор в кэше ведет к пересчету
func TestTransformStaleCacheEntry(t *testing.T) {
	f := newFixture()
	data := testImage(t)
	input := TransformInput{Data: data, Operations: grayscaleSet(t), Auth: allowed()}

	first, err := f.service.Transform(context.Background(), input)
	require.NoError(t, err)

	// Блоб исчез из хранилища, запись в кэше осталась
	for key := range f.storage.blobs {
		delete(f.storage.blobs, key)
	}

	second, err := f.service.Transform(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 2, f.processor.applyCalled)
}

func TestTransformFromURL(t *testing.T) {
	f := newFixture()
	f.fetcher.data = testImage(t)

	out, err := f.service.TransformFromURL(context.Background(),
		"https://example.com/cat.png",
		entity.Transformations{Grayscale: true},
		allowed())

	require.NoError(t, err)
	assert.False(t, out.CacheHit)
	assert.Equal(t, 1, f.processor.applyCalled)
}

// TestTransformFromURLKnownSkipsDownload: известный URL с готовым
// результатом не скачивается заново
func TestTransformFromURLKnownSkipsDownload(t *testing.T) {
	f := newFixture()
	f.fetcher.data = testImage(t)
	url := "https://example.com/cat.png"
	doc := entity.Transformations{Grayscale: true}

	first, err := f.service.TransformFromURL(context.Background(), url, doc, allowed())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, f.fetcher.calls)

	second, err := f.service.TransformFromURL(context.Background(), url, doc, allowed())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, f.fetcher.calls, "known URL must not be downloaded again")
	assert.Equal(t, 1, f.processor.applyCalled)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

// TestTransformFromURLKnownButEvicted: известный URL без записи в кэше
// проходит обычный путь со скачиванием
func TestTransformFromURLKnownButEvicted(t *testing.T) {
	f := newFixture()
	f.fetcher.data = testImage(t)
	url := "https://example.com/cat.png"
	doc := entity.Transformations{Grayscale: true}

	_, err := f.service.TransformFromURL(context.Background(), url, doc, allowed())
	require.NoError(t, err)

	// Кэш протух
	for fp := range f.cache.entries {
		delete(f.cache.entries, fp)
	}

	second, err := f.service.TransformFromURL(context.Background(), url, doc, allowed())
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.Equal(t, 2, f.fetcher.calls)
}

// TestTransformNearDuplicate: тот же кадр в другой кодировке отдается
// из кэша по перцептивному хэшу
func TestTransformNearDuplicate(t *testing.T) {
	f := newFixture()

	// Левая половина темная, правая светлая — резкий кадр, устойчивый
	// к потерям кодирования
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{R: 20, G: 20, B: 20, A: 255}
			if x >= 32 {
				c = color.RGBA{R: 230, G: 230, B: 230, A: 255}
			}
			img.Set(x, y, c)
		}
	}

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))
	var jpegBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpegBuf, img, &jpeg.Options{Quality: 90}))
	require.NotEqual(t, pngBuf.Bytes(), jpegBuf.Bytes())

	set := grayscaleSet(t)

	first, err := f.service.Transform(context.Background(), TransformInput{
		Data: pngBuf.Bytes(), Filename: "frame.png", Operations: set, Auth: allowed(),
	})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := f.service.Transform(context.Background(), TransformInput{
		Data: jpegBuf.Bytes(), Filename: "frame.jpg", Operations: set, Auth: allowed(),
	})
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, f.processor.applyCalled, "visually identical frame must not be recomputed")
	assert.Equal(t, first.ContentHash, second.ContentHash, "served as the already known source")
}

func TestTransformFromURLUnauthorized(t *testing.T) {
	f := newFixture()

	_, err := f.service.TransformFromURL(context.Background(),
		"https://example.com/cat.png",
		entity.Transformations{Grayscale: true},
		entity.AuthDecision{Allowed: false, Reason: entity.ReasonFallbackRestrictive})

	assert.ErrorIs(t, err, entity.ErrUnauthorized)
}

func TestUpload(t *testing.T) {
	f := newFixture()
	data := testImage(t)

	resp, err := f.service.Upload(context.Background(), UploadInput{
		Data:     data,
		Filename: "cat.png",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, resp.MetadataID)
	assert.Len(t, resp.ContentHash, 64)
	assert.Len(t, resp.PerceptualHash, 16)
	assert.Contains(t, resp.Filename, "cat.png")
}

// TestUploadIdempotent: повторная загрузка возвращает существующую запись
func TestUploadIdempotent(t *testing.T) {
	f := newFixture()
	data := testImage(t)

	first, err := f.service.Upload(context.Background(), UploadInput{Data: data, Filename: "cat.png"})
	require.NoError(t, err)

	second, err := f.service.Upload(context.Background(), UploadInput{Data: data, Filename: "copy.png"})
	require.NoError(t, err)

	assert.Equal(t, first.MetadataID, second.MetadataID)
	assert.Equal(t, first.ContentHash, second.ContentHash)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty payload", data: nil, wantErr: entity.ErrEmptyImage},
		{name: "oversized payload", data: make([]byte, 11<<20), wantErr: entity.ErrImageTooLarge},
		{name: "not an image", data: []byte("plain text"), wantErr: entity.ErrInvalidImageType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Upload(context.Background(), UploadInput{Data: tt.data, Filename: "x.png"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
