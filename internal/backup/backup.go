// Package backup uploads snapshots of the SQLite database to S3-compatible
// object storage.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/repository/sqlite"
	"github.com/prn-tf/alexander-library/internal/repository/sqlstore"
)

// ErrUnsupportedDriver is returned when the database is not SQLite.
var ErrUnsupportedDriver = errors.New("backup supports the sqlite driver only")

// ErrBackupRunning is returned when another backup holds the lock.
var ErrBackupRunning = errors.New("another backup is in progress")

// snapshotLockTTL bounds how long one backup may hold the lock.
const snapshotLockTTL = 10 * time.Minute

// ObjectPutter is the part of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client for the configured endpoint.
// Static credentials are used when set, otherwise the default AWS chain.
func NewS3Client(ctx context.Context, cfg config.BackupConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Service takes and uploads database snapshots.
type Service struct {
	db      *sqlstore.DB
	client  ObjectPutter
	bucket  string
	prefix  string
	tempDir string
	locker  lock.Locker
	now     func() time.Time
	logger  zerolog.Logger
}

// Config holds the dependencies of a Service. Locker is optional.
type Config struct {
	DB      *sqlstore.DB
	Client  ObjectPutter
	Bucket  string
	Prefix  string
	TempDir string
	Locker  lock.Locker
	Logger  zerolog.Logger
}

// Result describes an uploaded snapshot.
type Result struct {
	Bucket string
	Key    string
	Size   int64
	TookMS int64
}

// NewService creates a new Service.
func NewService(cfg Config) *Service {
	if cfg.Locker == nil {
		cfg.Locker = lock.NewNoOpLocker()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Service{
		db:      cfg.DB,
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		tempDir: cfg.TempDir,
		locker:  cfg.Locker,
		now:     time.Now,
		logger:  cfg.Logger.With().Str("component", "backup").Logger(),
	}
}

// ObjectKey returns the key a snapshot taken at t is stored under.
func (s *Service) ObjectKey(t time.Time) string {
	name := "library-" + t.UTC().Format("20060102T150405Z") + ".db"
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Run snapshots the database and uploads it. The snapshot file is
// removed afterwards whether or not the upload succeeded.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if s.db.Driver() != sqlstore.DriverSQLite {
		return nil, ErrUnsupportedDriver
	}
	if s.bucket == "" {
		return nil, errors.New("backup.bucket is not configured")
	}

	var result *Result
	err := lock.WithLock(ctx, s.locker, lock.Keys.Backup(), snapshotLockTTL, lock.RetryPolicy{}, func(ctx context.Context) error {
		var err error
		result, err = s.run(ctx)
		return err
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrBackupRunning
	}
	return result, err
}

func (s *Service) run(ctx context.Context) (*Result, error) {
	began := time.Now()
	key := s.ObjectKey(s.now())

	if err := os.MkdirAll(s.tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	snapshot := filepath.Join(s.tempDir, path.Base(key))
	defer os.Remove(snapshot)

	if err := sqlite.Snapshot(ctx, s.db.SQL(), snapshot); err != nil {
		return nil, err
	}

	f, err := os.Open(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload snapshot to s3://%s/%s: %w", s.bucket, key, err)
	}

	took := time.Since(began)
	s.logger.Info().
		Str("bucket", s.bucket).
		Str("key", key).
		Int64("size", info.Size()).
		Dur("duration", took).
		Msg("database backup uploaded")

	return &Result{Bucket: s.bucket, Key: key, Size: info.Size(), TookMS: took.Milliseconds()}, nil
}
