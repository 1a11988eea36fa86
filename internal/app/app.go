// Package app assembles the library's services from configuration.
// The server and the admin CLI share it.
package app

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/auth"
	"github.com/prn-tf/alexander-library/internal/backup"
	"github.com/prn-tf/alexander-library/internal/cache/memory"
	"github.com/prn-tf/alexander-library/internal/cache/redis"
	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/database"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/repository"
	"github.com/prn-tf/alexander-library/internal/repository/sqlstore"
	"github.com/prn-tf/alexander-library/internal/service"
)

// redisKeyPrefix namespaces cache keys in a shared Redis.
const redisKeyPrefix = "library:"

// App holds the opened database and the services built on it.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	DB      *sqlstore.DB
	Store   *repository.Store
	Metrics *metrics.Metrics
	Cache   repository.Cache
	Locker  lock.Locker

	Loans   *service.LoanService
	Books   *service.BookService
	Users   *service.UserService
	Reports *service.ReportService

	closers []func()
}

// Policy converts the circulation settings into ledger rules.
func Policy(cfg config.CirculationConfig) domain.CirculationPolicy {
	return domain.CirculationPolicy{
		LoanPeriodDays: cfg.LoanPeriodDays,
		FinePerDay:     domain.MoneyFromFloat(cfg.FinePerDay),
		WarningDays:    cfg.WarningDays,
	}
}

// New opens the database and builds the services. Redis backs the cache
// and the locks when enabled, otherwise both stay in process.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	policy := Policy(cfg.Circulation)
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	store, db, err := database.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Store:   store,
		Metrics: metrics.New(),
	}
	a.closers = append(a.closers, func() { store.Close() })

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.useRedis(client)
	} else {
		cache := memory.NewCache()
		locker := lock.NewMemoryLocker()
		a.Cache = cache
		a.Locker = locker
		a.closers = append(a.closers, cache.Stop, locker.Close)
	}

	repos := store.Repos
	a.Loans = service.NewLoanService(service.LoanServiceConfig{
		Loans:   repos.Loans,
		Books:   repos.Books,
		Users:   repos.Users,
		Tx:      repos.Tx,
		Locker:  a.Locker,
		Cache:   a.Cache,
		Metrics: a.Metrics,
		Policy:  policy,
		LockTTL: cfg.Circulation.LockTTL,
		Logger:  logger,
	})
	a.Books = service.NewBookService(repos.Books, a.Loans, repos.Tx, a.Locker, a.Cache, logger)
	a.Users = service.NewUserService(repos.Users, a.Loans, repos.Tx, a.Cache, cfg.Auth.BcryptCost, logger)
	a.Reports = service.NewReportService(repos.Reports, a.Loans, a.Cache, cfg.Circulation.ReportCacheTTL, a.Metrics, logger)

	logger.Info().
		Str("driver", cfg.Database.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Int("loan_period_days", policy.LoanPeriodDays).
		Str("fine_per_day", policy.FinePerDay.String()).
		Msg("library services ready")

	return a, nil
}

func (a *App) useRedis(client *goredis.Client) {
	a.Cache = redis.NewCache(client, redisKeyPrefix)
	a.Locker = lock.NewRedisLocker(redis.NewDistributedLock(client))
	a.closers = append(a.closers, func() { client.Close() })
}

// TokenIssuer builds the session token issuer. The server refuses to
// start without a token secret.
func (a *App) TokenIssuer() (*auth.TokenIssuer, error) {
	if a.Config.Auth.TokenSecret == "" {
		return nil, errors.New("auth.token_secret is required, generate one with library-admin keygen")
	}
	return auth.NewTokenIssuer(a.Config.Auth.TokenSecret, a.Config.Auth.Issuer, a.Config.Auth.TokenTTL)
}

// Backup builds the snapshot uploader for the configured bucket.
func (a *App) Backup(ctx context.Context) (*backup.Service, error) {
	if !a.Config.Database.IsEmbedded() {
		return nil, backup.ErrUnsupportedDriver
	}
	client, err := backup.NewS3Client(ctx, a.Config.Backup)
	if err != nil {
		return nil, err
	}
	return backup.NewService(backup.Config{
		DB:      a.DB,
		Client:  client,
		Bucket:  a.Config.Backup.Bucket,
		Prefix:  a.Config.Backup.Prefix,
		TempDir: a.Config.Backup.TempDir,
		Locker:  a.Locker,
		Logger:  a.Logger,
	}), nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
