package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/config"
	"github.com/fachebot/ai-news-digest/internal/logger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "digest:artifact"

// Store 被缓存的报告存储
type Store interface {
	GetArtifact(ctx context.Context, typ, date string, granularity artifact.Granularity) (*artifact.Stored, error)
	ListDailyArtifacts(ctx context.Context, typ string, start, end time.Time) ([]*artifact.Stored, error)
	Save(ctx context.Context, stored *artifact.Stored) error
}

// ArtifactCache Redis 读穿缓存；Redis 不可用时直接读写底层存储
type ArtifactCache struct {
	client *redis.Client
	store  Store
	ttl    time.Duration
}

func NewRedisClient(c *config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
}

func NewArtifactCache(client *redis.Client, store Store, ttl time.Duration) *ArtifactCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ArtifactCache{client: client, store: store, ttl: ttl}
}

func artifactKey(typ, date string, granularity artifact.Granularity) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, typ, granularity, date)
}

type cachedArtifact struct {
	Type        string               `json:"type"`
	Date        string               `json:"date"`
	Granularity artifact.Granularity `json:"granularity"`
	Fingerprint string               `json:"fingerprint"`
	Markdown    string               `json:"markdown"`
	JSON        []byte               `json:"json,omitempty"`
	UpdatedAt   int64                `json:"updatedAt"`
}

func toCached(s *artifact.Stored) cachedArtifact {
	return cachedArtifact{
		Type:        s.Type,
		Date:        s.Date,
		Granularity: s.Granularity,
		Fingerprint: s.Fingerprint,
		Markdown:    s.Markdown,
		JSON:        s.JSON,
		UpdatedAt:   s.UpdatedAt.Unix(),
	}
}

func (c cachedArtifact) stored() *artifact.Stored {
	return &artifact.Stored{
		Type:        c.Type,
		Date:        c.Date,
		Granularity: c.Granularity,
		Fingerprint: c.Fingerprint,
		Markdown:    c.Markdown,
		JSON:        c.JSON,
		UpdatedAt:   time.Unix(c.UpdatedAt, 0).UTC(),
	}
}

// GetArtifact 先查缓存，未命中时读取存储并回填
func (c *ArtifactCache) GetArtifact(ctx context.Context, typ, date string, granularity artifact.Granularity) (*artifact.Stored, error) {
	key := artifactKey(typ, date, granularity)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedArtifact
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached.stored(), nil
		}
		logger.Warnf("[Cache] 缓存数据损坏, key=%s", key)
	case errors.Is(err, redis.Nil):
	default:
		logger.Warnf("[Cache] 读取缓存失败, key=%s, %v", key, err)
	}

	stored, err := c.store.GetArtifact(ctx, typ, date, granularity)
	if err != nil || stored == nil {
		return stored, err
	}
	c.set(ctx, key, stored)
	return stored, nil
}

// ListDailyArtifacts 区间查询不缓存
func (c *ArtifactCache) ListDailyArtifacts(ctx context.Context, typ string, start, end time.Time) ([]*artifact.Stored, error) {
	return c.store.ListDailyArtifacts(ctx, typ, start, end)
}

// Save 写入存储后刷新缓存
func (c *ArtifactCache) Save(ctx context.Context, stored *artifact.Stored) error {
	if err := c.store.Save(ctx, stored); err != nil {
		return err
	}
	c.set(ctx, artifactKey(stored.Type, stored.Date, stored.Granularity), stored)
	return nil
}

func (c *ArtifactCache) set(ctx context.Context, key string, stored *artifact.Stored) {
	data, err := json.Marshal(toCached(stored))
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warnf("[Cache] 写入缓存失败, key=%s, %v", key, err)
	}
}

func (c *ArtifactCache) Close() error {
	return c.client.Close()
}
