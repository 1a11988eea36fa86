package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/repository/sqlite"
	"github.com/prn-tf/alexander-library/internal/repository/sqlstore"
)

type recordingPutter struct {
	bucket string
	key    string
	body   []byte
	err    error
}

func (p *recordingPutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.bucket = aws.ToString(in.Bucket)
	p.key = aws.ToString(in.Key)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	p.body = body
	return &s3.PutObjectOutput{}, nil
}

func openDB(t *testing.T) *sqlstore.DB {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "library.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrations, err := sqlite.Migrations()
	require.NoError(t, err)
	_, err = db.Migrate(ctx, migrations)
	require.NoError(t, err)
	return db
}

func newTestService(t *testing.T, putter ObjectPutter, locker lock.Locker) (*Service, string) {
	t.Helper()
	tempDir := filepath.Join(t.TempDir(), "snapshots")
	svc := NewService(Config{
		DB:      openDB(t),
		Client:  putter,
		Bucket:  "backups",
		Prefix:  "library-backups",
		TempDir: tempDir,
		Locker:  locker,
		Logger:  zerolog.Nop(),
	})
	svc.now = func() time.Time { return time.Date(2024, 1, 10, 12, 30, 5, 0, time.UTC) }
	return svc, tempDir
}

func TestObjectKey(t *testing.T) {
	svc := &Service{prefix: "nightly"}
	at := time.Date(2024, 3, 1, 23, 59, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "nightly/library-20240301T225900Z.db", svc.ObjectKey(at))

	svc.prefix = ""
	assert.Equal(t, "library-20240301T225900Z.db", svc.ObjectKey(at))
}

func TestRun_UploadsSnapshot(t *testing.T) {
	putter := &recordingPutter{}
	svc, tempDir := newTestService(t, putter, nil)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "backups", putter.bucket)
	assert.Equal(t, "library-backups/library-20240110T123005Z.db", putter.key)
	assert.Equal(t, putter.key, result.Key)
	assert.Equal(t, int64(len(putter.body)), result.Size)
	assert.True(t, bytes.HasPrefix(putter.body, []byte("SQLite format 3\x00")))

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "snapshot file must be removed")
}

func TestRun_UploadFailureRemovesSnapshot(t *testing.T) {
	putter := &recordingPutter{err: errors.New("bucket gone")}
	svc, tempDir := newTestService(t, putter, nil)

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_SingleBackupAtATime(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewMemoryLocker()
	t.Cleanup(locker.Close)

	svc, _ := newTestService(t, &recordingPutter{}, locker)

	acquired, err := locker.Acquire(ctx, lock.Keys.Backup(), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = svc.Run(ctx)
	assert.ErrorIs(t, err, ErrBackupRunning)

	_, err = locker.Release(ctx, lock.Keys.Backup())
	require.NoError(t, err)
	_, err = svc.Run(ctx)
	assert.NoError(t, err)
}

func TestRun_RequiresBucket(t *testing.T) {
	svc, _ := newTestService(t, &recordingPutter{}, nil)
	svc.bucket = ""

	_, err := svc.Run(context.Background())
	assert.Error(t, err)
}
