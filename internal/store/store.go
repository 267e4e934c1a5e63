package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob" // registers mem:// bucket URLs
	"gocloud.dev/gcerrors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ironsheep/coloring-care/internal/config"
	"github.com/ironsheep/coloring-care/internal/logging"
)

// Errors returned by the store.
var (
	ErrNotFound       = errors.New("not found")
	ErrMissingImageID = errors.New("image id is required")
	ErrEmptyImage     = errors.New("image data is empty")
	ErrUnsupportedExt = errors.New("unsupported file extension")
)

// Store persists gallery images, care sessions and their blobs.
type Store struct {
	db            *gorm.DB
	bucket        *blob.Bucket
	publicBaseURL string
	log           *zap.Logger
	now           func() time.Time
}

// Open connects to the configured database and bucket and migrates the
// schema.
func Open(ctx context.Context, dbCfg config.DatabaseConfig, stCfg config.StorageConfig, log *zap.Logger) (*Store, error) {
	db, err := OpenDB(dbCfg, log)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, stCfg.Bucket)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	s, err := New(db, bucket, stCfg.PublicBaseURL, log)
	if err != nil {
		bucket.Close()
		closeDB(db)
		return nil, err
	}
	return s, nil
}

// OpenDB opens a sqlite or postgres connection with the zap-backed GORM
// logger.
func OpenDB(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("could not create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.NewGormZapLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully.", zap.String("driver", dialector.Name()))
	return db, nil
}

// OpenBucket opens a blob bucket. A value containing "://" is treated as a
// bucket URL; anything else is a local directory.
func OpenBucket(ctx context.Context, location string) (*blob.Bucket, error) {
	if strings.Contains(location, "://") {
		b, err := blob.OpenBucket(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("failed to open bucket %q: %w", location, err)
		}
		return b, nil
	}
	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, fmt.Errorf("could not create storage directory: %w", err)
	}
	b, err := fileblob.OpenBucket(location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage directory %q: %w", location, err)
	}
	return b, nil
}

// New wraps an open database and bucket and runs migrations.
func New(db *gorm.DB, bucket *blob.Bucket, publicBaseURL string, log *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&GalleryImage{}, &SessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	return &Store{
		db:            db,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           log.Named("store"),
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the bucket and the database connection.
func (s *Store) Close() error {
	errBucket := s.bucket.Close()
	return errors.Join(errBucket, closeDB(s.db))
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PublicURL returns the address clients use to fetch key.
func (s *Store) PublicURL(key string) string {
	return s.publicBaseURL + "/" + key
}

// ReadObject returns a stored object and its content type.
func (s *Store) ReadObject(ctx context.Context, key string) ([]byte, string, error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return data, attrs.ContentType, nil
}

func (s *Store) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	return s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: contentType})
}

// deleteObject removes key; a missing object is not an error.
func (s *Store) deleteObject(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	return nil
}

// objectKey builds "<prefix>/<millis>_<rand><ext>".
func (s *Store) objectKey(prefix, ext string) string {
	return fmt.Sprintf("%s/%d_%s%s", prefix, s.now().UnixMilli(), randomSuffix(), ext)
}
