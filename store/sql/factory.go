package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-schedsync/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	webhookEventStore    core.WebhookEventStore
	syncJobStore         *SyncJobStore
	notificationJobStore *NotificationJobStore
	auditLogStore        *AuditLogStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.webhookEventStore != nil && f.syncJobStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

// WithWebhookEventCache wraps the webhook event store with cached dedup
// lookups. Call after BuildStores.
func (f *RepositoryFactory) WithWebhookEventCache(cacheService repositorycache.CacheService) error {
	if f == nil || f.webhookEventStore == nil {
		return fmt.Errorf("sqlstore: stores are not built")
	}
	cached, err := NewCachedWebhookEventStore(f.webhookEventStore, cacheService)
	if err != nil {
		return err
	}
	f.webhookEventStore = cached
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) WebhookEvents() core.WebhookEventStore {
	if f == nil {
		return nil
	}
	return f.webhookEventStore
}

func (f *RepositoryFactory) SyncJobs() core.SyncJobStore {
	if f == nil {
		return nil
	}
	return f.syncJobStore
}

func (f *RepositoryFactory) NotificationJobs() core.NotificationJobStore {
	if f == nil {
		return nil
	}
	return f.notificationJobStore
}

func (f *RepositoryFactory) AuditLog() core.AuditLogStore {
	if f == nil {
		return nil
	}
	return f.auditLogStore
}

func (f *RepositoryFactory) initStores() error {
	webhookEventStore, err := NewWebhookEventStore(f.db)
	if err != nil {
		return err
	}
	f.webhookEventStore = webhookEventStore

	syncJobStore, err := NewSyncJobStore(f.db)
	if err != nil {
		return err
	}
	f.syncJobStore = syncJobStore

	notificationJobStore, err := NewNotificationJobStore(f.db)
	if err != nil {
		return err
	}
	f.notificationJobStore = notificationJobStore

	auditLogStore, err := NewAuditLogStore(f.db)
	if err != nil {
		return err
	}
	f.auditLogStore = auditLogStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
