package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/libraryhub/backend/internal/models"
)

const totalsGenKey = "fines:totals:gen"

// totalsCache keeps computed fine totals under a generation number. Any fine mutation bumps
// the generation so every cached total is dropped at once.
type totalsCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func totalsKey(gen int64, name string) string {
	return fmt.Sprintf("fines:totals:%d:%s", gen, name)
}

// lookup returns the cached total and the generation it was read under. A negative
// generation means the cache cannot be used for this request.
func (c *totalsCache) lookup(ctx context.Context, name string) (*models.FineTotal, int64, bool) {
	if c == nil || c.redis == nil {
		return nil, -1, false
	}

	gen, err := c.redis.Get(ctx, totalsGenKey).Int64()
	if err == redis.Nil {
		gen = 0
	} else if err != nil {
		log.Printf("[FINES] totals cache unavailable: %v", err)
		return nil, -1, false
	}

	data, err := c.redis.Get(ctx, totalsKey(gen, name)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[FINES] totals cache read failed: %v", err)
		}
		return nil, gen, false
	}

	var total models.FineTotal
	if err := json.Unmarshal(data, &total); err != nil {
		return nil, gen, false
	}
	return &total, gen, true
}

func (c *totalsCache) store(ctx context.Context, gen int64, name string, total models.FineTotal) {
	if c == nil || c.redis == nil || gen < 0 {
		return
	}
	data, err := json.Marshal(total)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, totalsKey(gen, name), string(data), c.ttl).Err(); err != nil {
		log.Printf("[FINES] totals cache write failed: %v", err)
	}
}

func (c *totalsCache) invalidate(ctx context.Context) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Incr(ctx, totalsGenKey).Err(); err != nil {
		log.Printf("[FINES] totals cache invalidation failed: %v", err)
	}
}
