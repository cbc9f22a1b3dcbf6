package podfeed

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"podfeed/internal/app/podfeed/proc"
	"podfeed/internal/configs"
)

// NewBoltDB opens bolt db file, makes missing directories
func NewBoltDB(dbFile string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbFile), 0o700); err != nil {
		return nil, fmt.Errorf("can't make directory for %s: %w", dbFile, err)
	}
	return bolt.Open(dbFile, 0o600, &bolt.Options{Timeout: 1 * time.Second})
}

// NewStorage opens storage engine selected in config
func NewStorage(engine, path string) (proc.Storage, error) {
	switch engine {
	case configs.EngineBolt:
		db, err := NewBoltDB(path)
		if err != nil {
			return nil, err
		}
		return proc.NewBoltStorage(db)
	case configs.EngineSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("can't make directory for %s: %w", path, err)
		}
		db, err := proc.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return proc.NewSQLiteStorage(db), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", engine)
	}
}

// NewS3Client makes minio client
func NewS3Client(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
}
