package database

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/libraryhub/backend/internal/config"
)

// InitRedis connects to Redis. A nil client means caching, sweep locking and notification
// de-duplication are disabled.
func InitRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Host == "" {
		log.Println("Redis host not configured, continuing without Redis")
		return nil
	}

	addr := cfg.Host + ":" + cfg.Port
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("Redis connection failed, continuing without Redis: %v", err)
		rdb.Close()
		return nil
	}

	log.Println("Redis connection established")
	return rdb
}
