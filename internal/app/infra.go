package app

import (
	"context"

	"carelog/internal/config"
	"carelog/internal/db"
	"carelog/internal/logger"
	"carelog/internal/redis"
	"carelog/internal/session"
)

type Infra struct {
	DB       *db.DB
	Redis    *redis.Client // nil when sessions are kept in memory
	Sessions session.Store
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("database ready", nil)

	infra := &Infra{DB: database}

	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, sessions kept in memory", nil)
		infra.Sessions = session.NewMemoryStore()
		return infra, nil
	}

	redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr})

	infra.Redis = redisClient
	infra.Sessions = session.NewRedisStore(redisClient.Client)
	return infra, nil
}

func (i *Infra) Close() error {
	var firstErr error
	if i.Redis != nil {
		firstErr = i.Redis.Close()
	}
	if err := i.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
