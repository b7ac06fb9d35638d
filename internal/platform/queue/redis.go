package queue

import (
	"context"
	"fmt"
	"time"
	"tle_zone_grader/internal/platform/config"
	"tle_zone_grader/internal/platform/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RDB *redis.Client

func ConnectRedis() {
	var err error
	RDB, err = NewClient(config.AppConfig.RedisAddr, config.AppConfig.RedisPassword, config.AppConfig.RedisDB)
	if err != nil {
		logger.Fatal(context.Background(), "redis unavailable", zap.String("addr", config.AppConfig.RedisAddr), zap.Error(err))
	}
	logger.Info(context.Background(), "connected to Redis", zap.String("addr", config.AppConfig.RedisAddr))
}

func NewClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		logger.Info(context.Background(), "redis connection closed")
	}
}
