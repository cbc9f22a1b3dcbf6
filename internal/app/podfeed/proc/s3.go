package proc

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	log "github.com/go-pkgz/lgr"
	"github.com/minio/minio-go/v7"
)

// S3Store store
type S3Store struct {
	Client   *minio.Client
	Location string
	Bucket   string
}

// UploadSnapshot uploads data to s3 storage, returns location of the object
func (s *S3Store) UploadSnapshot(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	uploadInfo, err := s.Client.PutObject(ctx, s.Bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("can't upload %s to bucket %s: %w", objectName, s.Bucket, err)
	}
	log.Printf("[INFO] uploaded %s to %s, %d bytes", objectName, s.Bucket, uploadInfo.Size)

	if uploadInfo.Location != "" {
		return uploadInfo.Location, nil
	}
	return s.getLocation(ctx, objectName)
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s.Client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return fmt.Errorf("can't check exists bucket %s: %w", s.Bucket, err)
	}
	if exists {
		return nil
	}
	if err = s.Client.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{Region: s.Location}); err != nil {
		return fmt.Errorf("can't create bucket %s: %w", s.Bucket, err)
	}
	return nil
}

func (s *S3Store) getLocation(ctx context.Context, objectName string) (string, error) {
	endpoint := s.Client.EndpointURL()

	statInfo, err := s.Client.StatObject(ctx, s.Bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint.String(), "/"), s.Bucket, statInfo.Key), nil
}
