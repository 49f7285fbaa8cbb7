package mongodb

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/HarshTuring/docklens/internal/database"
	"github.com/HarshTuring/docklens/internal/entity"
)

const imagesCollection = "images"

type versionRepository struct {
	client *mongo.Client
	db     string
}

func NewVersionRepository(client *mongo.Client, db string) database.VersionRepository {
	return &versionRepository{client: client, db: db}
}

func (r *versionRepository) collection() *mongo.Collection {
	return r.client.Database(r.db).Collection(imagesCollection)
}

func (r *versionRepository) SaveUpload(ctx context.Context, src *entity.SourceImage) (*entity.SourceImage, error) {
	// Первая запись выигрывает: повторная загрузка того же изображения
	// возвращает существующий документ
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":               uuid.New().String(),
			"content_hash":      src.ContentHash,
			"phash":             src.PerceptualHash,
			"filename":          src.Filename,
			"original_filename": src.OriginalFilename,
			"source_type":       src.SourceType,
			"source_url":        src.SourceURL,
			"storage_key":       src.StorageKey,
			"upload_date":       src.UploadDate,
			"processed_images":  []entity.ProcessedVersion{},
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored entity.SourceImage
	err := r.collection().
		FindOneAndUpdate(ctx, bson.M{"content_hash": src.ContentHash}, update, opts).
		Decode(&stored)
	if err != nil {
		return nil, err
	}

	return &stored, nil
}

func (r *versionRepository) RecordVersion(ctx context.Context, contentHash string, version entity.ProcessedVersion) (*entity.ProcessedVersion, error) {
	// Guarded push: документ получает версию только если такого
	// fingerprint еще нет, конкурентные дубликаты отсекаются на стороне БД
	filter := bson.M{
		"content_hash":               contentHash,
		"processed_images.fingerprint": bson.M{"$ne": version.Fingerprint},
	}

	_, err := r.collection().UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"processed_images": version},
	})
	if err != nil {
		return nil, err
	}

	var stored entity.SourceImage
	err = r.collection().FindOne(ctx, bson.M{"content_hash": contentHash}).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrImageNotFound
		}
		return nil, err
	}

	for i := range stored.ProcessedImages {
		if stored.ProcessedImages[i].Fingerprint == version.Fingerprint {
			return &stored.ProcessedImages[i], nil
		}
	}
	return nil, entity.ErrVersionNotFound
}

func (r *versionRepository) ListVersions(ctx context.Context, contentHash string) ([]entity.ProcessedVersion, error) {
	var stored entity.SourceImage
	err := r.collection().FindOne(ctx, bson.M{"content_hash": contentHash}).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrImageNotFound
		}
		return nil, err
	}

	// processed_images пополняется только $push, порядок вставки и есть
	// порядок создания
	return stored.ProcessedImages, nil
}

func (r *versionRepository) History(ctx context.Context, limit int64, operation, sourceType string) ([]entity.SourceImage, error) {
	if limit <= 0 {
		limit = 10
	}

	filter := bson.M{}
	if operation != "" {
		filter["processed_images.operations.name"] = operation
	}
	if sourceType != "" {
		filter["source_type"] = sourceType
	}

	opts := options.Find().
		SetSort(bson.M{"upload_date": -1}).
		SetLimit(limit)

	cursor, err := r.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []entity.SourceImage
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *versionRepository) FindByURL(ctx context.Context, sourceURL string) (*entity.SourceImage, error) {
	var stored entity.SourceImage
	err := r.collection().FindOne(ctx, bson.M{"source_url": sourceURL}).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrImageNotFound
		}
		return nil, err
	}
	return &stored, nil
}

func (r *versionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}
