package kanban

import (
	"context"
	"crm/source/schemas"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const pageCachePrefix = "kanban"

// PageCache keeps rendered stage pages in Redis. Every (funnel, stage) has a
// version counter that is part of the page keys; funnel events bump it, so
// pages cached before a change are never read again and expire with the TTL.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPageCache(client *redis.Client, ttl time.Duration) *PageCache {
	return &PageCache{client: client, ttl: ttl}
}

func versionKey(funnelID bson.ObjectID, stageID string) string {
	return fmt.Sprintf("%s:version:%s:%s", pageCachePrefix, funnelID.Hex(), stageID)
}

func (c *PageCache) pageKey(ctx context.Context, request schemas.StagePageRequest) (string, error) {
	version, err := c.client.Get(ctx, versionKey(request.FunnelID, request.StageID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}

	digest := sha256.Sum256([]byte(request.Filters.CanonicalKey()))
	return fmt.Sprintf("%s:page:%s:%s:v%d:%d:%d:%s",
		pageCachePrefix,
		request.FunnelID.Hex(),
		request.StageID,
		version,
		request.Page,
		request.PageSize,
		hex.EncodeToString(digest[:12]),
	), nil
}

// Get returns the cached page for an already scoped and defaulted request,
// along with the key the freshly read page must be stored under. The key is
// taken before the read so a change landing meanwhile makes it unreachable.
func (c *PageCache) Get(ctx context.Context, request schemas.StagePageRequest) (schemas.StagePage, string, bool) {
	key, err := c.pageKey(ctx, request)
	if err != nil {
		log.Printf("[Kanban] Erro ao ler versão do cache: %v", err)
		return schemas.StagePage{}, "", false
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[Kanban] Erro ao ler página do cache: %v", err)
		}
		return schemas.StagePage{}, key, false
	}

	page := schemas.StagePage{}
	if err := json.Unmarshal(payload, &page); err != nil {
		log.Printf("[Kanban] Página inválida no cache %s: %v", key, err)
		return schemas.StagePage{}, key, false
	}
	return page, key, true
}

func (c *PageCache) Set(ctx context.Context, key string, page schemas.StagePage) {
	if key == "" {
		return
	}

	payload, err := json.Marshal(page)
	if err != nil {
		log.Printf("[Kanban] Erro ao serializar página: %v", err)
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		log.Printf("[Kanban] Erro ao gravar página no cache: %v", err)
	}
}

// Notify bumps the versions of the stages the event changed.
func (c *PageCache) Notify(ctx context.Context, event schemas.FunnelEvent) error {
	stages := event.AffectedStages()
	if len(stages) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, stageID := range stages {
			pipe.Incr(ctx, versionKey(event.FunnelID, stageID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bump kanban cache version: %w", err)
	}
	return nil
}

// Version is the current cache version of a stage.
func (c *PageCache) Version(ctx context.Context, funnelID bson.ObjectID, stageID string) (int64, error) {
	value, err := c.client.Get(ctx, versionKey(funnelID, stageID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}
