package cli

import (
	"context"
	"fmt"
	"time"

	"exam-session-service/internal/app"
	"exam-session-service/internal/config"
	"exam-session-service/internal/domain"
	"exam-session-service/internal/infra/filestore"
	"exam-session-service/internal/infra/memory"
	pgstore "exam-session-service/internal/infra/postgres"
	rediscache "exam-session-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// backends are the collaborators chosen by configuration: postgres when a
// URL is set, redis in front of it when an address is set, memory otherwise.
type backends struct {
	exams       app.ExamRepository
	submissions app.SubmissionStore
	blobs       app.BlobStore
	checkpoints app.CheckpointStore
	blobPrefix  string
	close       func()
}

func openBackends(ctx context.Context, cfg config.Config, log zerolog.Logger) (*backends, error) {
	b := &backends{close: func() {}}
	var closers []func()
	b.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		b.exams = pgstore.NewExamRepository(pool)
		b.submissions = pgstore.NewSubmissionStore(pool)
		log.Info().Msg("using postgres exam repository")
	} else {
		b.exams = memory.NewExamRepository()
		b.submissions = memory.NewSubmissionStore()
		log.Warn().Msg("postgres not configured, exams live in memory")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.exams = rediscache.NewExamCache(client, b.exams, config.TTLDuration(cfg.Exam.CacheTTL, 10*time.Minute))
		b.checkpoints = rediscache.NewCheckpointStore(client, config.TTLDuration(cfg.Redis.TTL, 0))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis exam cache and checkpoints")
	} else {
		b.checkpoints = memory.NewCheckpointStore()
	}

	if cfg.Blobs.Dir != "" {
		store, err := filestore.New(cfg.Blobs.Dir, cfg.Blobs.PublicPrefix)
		if err != nil {
			b.close()
			return nil, err
		}
		b.blobs = store
		b.blobPrefix = cfg.Blobs.PublicPrefix
	} else {
		b.blobs = memory.NewBlobStore()
		b.blobPrefix = memory.RefPrefix
	}
	return b, nil
}

func catalogOptions(cfg config.Config) app.CatalogOptions {
	opts := app.CatalogOptions{MaxImportBytes: cfg.MaxPackageBytes()}
	if len(cfg.Exam.Layout.Counts) > 0 {
		opts.Layout = &domain.PartLayout{Prefix: cfg.Exam.Layout.Prefix, Counts: cfg.Exam.Layout.Counts}
	}
	return opts
}
