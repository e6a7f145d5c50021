package comparison

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/pkg/common"

	"github.com/go-redis/redis/v8"
)

// RedisTier 多個實例共用的比對快取層
type RedisTier struct {
	client    *redis.Client
	keyPrefix string
	timeout   time.Duration
}

// NewRedisTier 創建 Redis 快取層，未啟用時回傳 nil
func NewRedisTier(cfg *config.RedisConfig) (*RedisTier, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 測試連接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisTierFromClient(client, cfg.KeyPrefix, cfg.Timeout), nil
}

// NewRedisTierFromClient 以既有 client 建立快取層
func NewRedisTierFromClient(client *redis.Client, keyPrefix string, timeout time.Duration) *RedisTier {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisTier{
		client:    client,
		keyPrefix: keyPrefix,
		timeout:   timeout,
	}
}

// getMany 批次讀取，回傳命中的項目
func (r *RedisTier) getMany(ctx context.Context, pairs []Pair) (map[Pair]Entry, error) {
	out := make(map[Pair]Entry, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = r.generateKey(p)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := common.DecodeJSONStrict(strings.NewReader(s), &e); err != nil {
			continue
		}
		if e.Pair != pairs[i] || !e.Status.Valid() {
			continue
		}
		out[pairs[i]] = e
	}
	return out, nil
}

// setMany 以 pipeline 寫入，不設過期時間
func (r *RedisTier) setMany(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pipe := r.client.Pipeline()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		pipe.Set(ctx, r.generateKey(e.Pair), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Ping 檢查連線
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 關閉連線
func (r *RedisTier) Close() error {
	return r.client.Close()
}

// generateKey 生成緩存鍵
func (r *RedisTier) generateKey(p Pair) string {
	return r.keyPrefix + p.A + "\x1f" + p.B
}
