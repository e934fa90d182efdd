// Package schedsync assembles the scheduling integration runtime: calendar
// token management, webhook ingest, applicant-tracking writebacks and the
// persisted retry queues. Hosts construct a Service from config plus
// options, then reach the pieces through accessors or the command facade.
package schedsync

import (
	"context"
	"fmt"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	gojobadapter "github.com/goliatone/go-schedsync/adapters/gojob"
	gologgeradapter "github.com/goliatone/go-schedsync/adapters/gologger"
	"github.com/goliatone/go-schedsync/ats"
	"github.com/goliatone/go-schedsync/auth"
	"github.com/goliatone/go-schedsync/core"
	"github.com/goliatone/go-schedsync/webhooks"
	"github.com/goliatone/go-schedsync/worker"
	"github.com/goliatone/go-schedsync/writeback"
)

type Config = core.Config

type ConfigProvider = core.ConfigProvider

type OptionsResolver = core.OptionsResolver

type StoreProvider = core.StoreProvider

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// RepositoryStoreFactory builds the persistent stores from a persistence
// client. Satisfied by the sqlstore repository factory.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (core.StoreProvider, error)
}

type serviceBuilder struct {
	runtimeConfig     core.Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient any
	repositoryFactory any
	stores            core.StoreProvider
	httpClient        core.HTTPDoer
	noteWriter        writeback.NoteWriter
	sender            core.NotificationSender
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger core.Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithStores(stores core.StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.stores = stores
	}
}

func WithHTTPClient(client core.HTTPDoer) Option {
	return func(b *serviceBuilder) {
		b.httpClient = client
	}
}

// WithNoteWriter overrides the applicant-tracking note sink; without it the
// configured ATS client writes the notes.
func WithNoteWriter(writer writeback.NoteWriter) Option {
	return func(b *serviceBuilder) {
		b.noteWriter = writer
	}
}

func WithNotificationSender(sender core.NotificationSender) Option {
	return func(b *serviceBuilder) {
		b.sender = sender
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

// Service is the assembled runtime. Components whose config section is
// absent stay nil; accessors report that and the facade requires the full
// set.
type Service struct {
	config          core.Config
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metricsRecorder core.MetricsRecorder
	stores          core.StoreProvider

	tokens     *auth.TokenManager
	atsClient  *ats.Client
	ingest     *webhooks.IngestService
	writebacks *writeback.Service
	queue      *worker.Worker
}

func New(cfg Config, opts ...Option) (*Service, error) {
	builder := serviceBuilder{runtimeConfig: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := gologgeradapter.Resolve("schedsync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("schedsync"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = core.NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, err
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, err
	}

	stores := builder.stores
	if stores == nil && builder.repositoryFactory != nil {
		switch factory := builder.repositoryFactory.(type) {
		case RepositoryStoreFactory:
			built, buildErr := factory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, buildErr
			}
			stores = built
		case core.StoreProvider:
			stores = factory
		default:
			return nil, fmt.Errorf("schedsync: unsupported repository factory type %T", builder.repositoryFactory)
		}
	}
	if stores == nil {
		stores = core.NewMemoryStores()
	}

	svc := &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		stores:          stores,
	}

	if finalConfig.CalendarAuth.ClientID != "" {
		tokens, tokenErr := auth.NewTokenManager(auth.TokenManagerConfig{
			TenantID:     finalConfig.CalendarAuth.TenantID,
			ClientID:     finalConfig.CalendarAuth.ClientID,
			ClientSecret: finalConfig.CalendarAuth.ClientSecret,
			Scope:        finalConfig.CalendarAuth.Scope,
			TokenURL:     finalConfig.CalendarAuth.TokenURL,
			HTTPClient:   builder.httpClient,
			Logger:       logger,
			Now:          builder.now,
		})
		if tokenErr != nil {
			return nil, tokenErr
		}
		svc.tokens = tokens
	}

	noteWriter := builder.noteWriter
	if finalConfig.ATS.BaseURL != "" {
		client, clientErr := ats.NewClient(ats.ClientConfig{
			BaseURL:    finalConfig.ATS.BaseURL,
			APIKey:     finalConfig.ATS.APIKey,
			MaxRetries: finalConfig.ATS.MaxRetries,
			RetryDelay: finalConfig.ATS.RetryDelay,
			HTTPClient: builder.httpClient,
			Logger:     logger,
			Now:        builder.now,
		})
		if clientErr != nil {
			return nil, clientErr
		}
		svc.atsClient = client
		if noteWriter == nil {
			noteWriter = client
		}
	}

	if finalConfig.Webhook.Secret != "" {
		ingest, ingestErr := webhooks.NewIngestService(webhooks.IngestServiceConfig{
			Secret: finalConfig.Webhook.Secret,
			Events: stores.WebhookEvents(),
			Audit:  stores.AuditLog(),
			Logger: logger,
			Now:    builder.now,
		})
		if ingestErr != nil {
			return nil, ingestErr
		}
		svc.ingest = ingest
	}

	if noteWriter != nil {
		writebacks, writebackErr := writeback.NewService(
			noteWriter,
			stores.SyncJobs(),
			stores.AuditLog(),
			writeback.WithLogger(logger),
			writeback.WithClock(builder.now),
			writeback.WithJobMaxAttempts(finalConfig.Jobs.MaxAttempts),
		)
		if writebackErr != nil {
			return nil, writebackErr
		}
		svc.writebacks = writebacks

		queue, workerErr := worker.New(worker.Config{
			Jobs:          stores.SyncJobs(),
			Notifications: stores.NotificationJobs(),
			Retrier:       writebacks,
			Sender:        builder.sender,
			Logger:        logger,
			Metrics:       builder.metricsRecorder,
			Now:           builder.now,
			BatchLimit:    finalConfig.Jobs.BatchLimit,
			StaleLease:    finalConfig.Jobs.StaleLease,
			MaxAttempts:   finalConfig.Jobs.MaxAttempts,
		})
		if workerErr != nil {
			return nil, workerErr
		}
		svc.queue = queue
	}

	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return New(cfg, opts...)
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() core.Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

func (s *Service) Stores() core.StoreProvider {
	if s == nil {
		return nil
	}
	return s.stores
}

func (s *Service) Tokens() *auth.TokenManager {
	if s == nil {
		return nil
	}
	return s.tokens
}

func (s *Service) ATS() *ats.Client {
	if s == nil {
		return nil
	}
	return s.atsClient
}

func (s *Service) Webhooks() *webhooks.IngestService {
	if s == nil {
		return nil
	}
	return s.ingest
}

func (s *Service) Writeback() *writeback.Service {
	if s == nil {
		return nil
	}
	return s.writebacks
}

func (s *Service) Queue() *worker.Worker {
	if s == nil {
		return nil
	}
	return s.queue
}

// IngressHandler exposes the webhook endpoint for mounting on a host mux.
func (s *Service) IngressHandler() http.Handler {
	if s == nil || s.ingest == nil {
		return nil
	}
	return webhooks.NewIngressHandler(s.ingest)
}

// JobEnqueuer pushes queue-cycle triggers onto a job runner. Satisfied by
// the gojob enqueuer adapter.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error
}

// ScheduleQueueCycles enqueues the sync and notification cycle triggers for
// one window. The window folds into each idempotency key, so repeated
// scheduling of the same window dedupes at the queue.
func (s *Service) ScheduleQueueCycles(ctx context.Context, enqueuer JobEnqueuer, window time.Time) error {
	if s == nil {
		return fmt.Errorf("schedsync: service is not configured")
	}
	if enqueuer == nil {
		return fmt.Errorf("schedsync: job enqueuer is required")
	}
	for _, jobID := range []string{gojobadapter.JobIDSyncQueue, gojobadapter.JobIDNotificationQueue} {
		if err := enqueuer.Enqueue(ctx, gojobadapter.CycleMessage(jobID, window)); err != nil {
			return fmt.Errorf("schedsync: enqueue %s cycle: %w", jobID, err)
		}
	}
	return nil
}
