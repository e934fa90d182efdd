package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-schedsync/core"
)

const webhookEventCacheKeyPrefix = "go-schedsync::webhook_event::v1"

// CachedWebhookEventStore fronts the dedup lookups with a cache. Webhook
// senders retry aggressively, so the same event id is usually probed many
// times within seconds; only the first probe should touch the database.
type CachedWebhookEventStore struct {
	base  core.WebhookEventStore
	cache repositorycache.CacheService
}

func NewCachedWebhookEventStore(
	base core.WebhookEventStore,
	cacheService repositorycache.CacheService,
) (*CachedWebhookEventStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base webhook event store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: webhook event cache service is required")
	}
	return &CachedWebhookEventStore{base: base, cache: cacheService}, nil
}

// WebhookEventCacheKey is the deterministic cache key contract:
// go-schedsync::webhook_event::v1::<kind>::<value> with the value segment
// URL-path escaped.
func WebhookEventCacheKey(kind string, value string) string {
	return strings.Join([]string{
		webhookEventCacheKeyPrefix,
		kind,
		url.PathEscape(strings.TrimSpace(value)),
	}, "::")
}

func (s *CachedWebhookEventStore) Create(ctx context.Context, event core.WebhookEvent) (core.WebhookEvent, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: cached webhook event store is not configured")
	}
	created, err := s.base.Create(ctx, event)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	// negative lookups may be cached; clear both dedup keys
	if err := s.invalidate(ctx, created); err != nil {
		return core.WebhookEvent{}, err
	}
	return created, nil
}

func (s *CachedWebhookEventStore) GetByEventID(ctx context.Context, eventID string) (core.WebhookEvent, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: cached webhook event store is not configured")
	}
	cacheKey := WebhookEventCacheKey("event_id", eventID)
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.WebhookEvent, error) {
		return s.base.GetByEventID(ctx, eventID)
	})
}

func (s *CachedWebhookEventStore) GetByPayloadHash(ctx context.Context, payloadHash string) (core.WebhookEvent, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: cached webhook event store is not configured")
	}
	cacheKey := WebhookEventCacheKey("payload_hash", payloadHash)
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.WebhookEvent, error) {
		return s.base.GetByPayloadHash(ctx, payloadHash)
	})
}

func (s *CachedWebhookEventStore) UpdateStatus(
	ctx context.Context,
	id string,
	status core.WebhookEventStatus,
	processedAt *time.Time,
) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached webhook event store is not configured")
	}
	// status changes don't affect the dedup decision, so cached dedup
	// entries stay valid; no invalidation needed here
	return s.base.UpdateStatus(ctx, id, status, processedAt)
}

func (s *CachedWebhookEventStore) invalidate(ctx context.Context, event core.WebhookEvent) error {
	if strings.TrimSpace(event.EventID) != "" {
		if err := s.cache.Delete(ctx, WebhookEventCacheKey("event_id", event.EventID)); err != nil {
			return err
		}
	}
	if strings.TrimSpace(event.PayloadHash) != "" {
		if err := s.cache.Delete(ctx, WebhookEventCacheKey("payload_hash", event.PayloadHash)); err != nil {
			return err
		}
	}
	return nil
}

var _ core.WebhookEventStore = (*CachedWebhookEventStore)(nil)
