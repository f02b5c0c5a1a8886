// Package retention mirrors shipped archives into an object-storage bucket.
package retention

import (
	"context"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

type Store interface {
	// Keep copies the archive at localPath to <mode>/<day>/<name>, name being
	// the file name it was shipped under. A failure is logged and returned,
	// callers treat it as non-fatal.
	Keep(ctx context.Context, localPath, mode, day, name string) error
}

// ObjectKey is the bucket key an archive is mirrored to.
func ObjectKey(mode, day, name string) string {
	return path.Join(mode, day, name)
}

type minioStore struct {
	client *minio.Client
	bucket string
}

// NewStore returns a no-op store when client is nil.
func NewStore(client *minio.Client, bucket string) Store {
	if client == nil {
		return noopStore{}
	}
	return &minioStore{client: client, bucket: bucket}
}

func (s *minioStore) Keep(ctx context.Context, localPath, mode, day, name string) error {
	key := ObjectKey(mode, day, name)
	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("object", key).Msg("failed to mirror archive")
		return err
	}
	zerolog.Ctx(ctx).Info().Str("bucket", s.bucket).Str("object", key).Int64("size", info.Size).Msg("archive mirrored")
	return nil
}

type noopStore struct{}

func (noopStore) Keep(context.Context, string, string, string, string) error {
	return nil
}
