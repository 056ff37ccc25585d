package requester

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/newsnexus/connectivity"
	"github.com/hazyhaar/newsnexus/horosafe"
	"github.com/hazyhaar/newsnexus/observability"
	"github.com/hazyhaar/newsnexus/requester/internal/diag"
	"github.com/hazyhaar/newsnexus/requester/internal/errs"
	"github.com/hazyhaar/newsnexus/requester/internal/fetch"
	"github.com/hazyhaar/newsnexus/requester/internal/ingest"
	"github.com/hazyhaar/newsnexus/requester/internal/lock"
	"github.com/hazyhaar/newsnexus/requester/internal/pipeline"
	"github.com/hazyhaar/newsnexus/requester/internal/query"
	"github.com/hazyhaar/newsnexus/requester/internal/scheduler"
	"github.com/hazyhaar/newsnexus/requester/internal/scoring"
	"github.com/hazyhaar/newsnexus/requester/internal/store"
	"github.com/hazyhaar/newsnexus/requester/internal/window"
	"github.com/redis/go-redis/v9"
)

// Scorer is the collaborator awaited when the feed rate-limits us.
type Scorer interface {
	Trigger(ctx context.Context) error
}

// Locker serializes runs that share a source and keyword triple.
type Locker = lock.Locker

// Service is the newsnexus orchestrator.
type Service struct {
	db           *sql.DB
	store        *store.Store
	config       *Config
	router       *connectivity.Router
	runner       meteredRunner
	metrics      *observability.MetricsManager
	locker       Locker
	scorer       Scorer
	reporter     diag.Reporter
	logger       *slog.Logger
	now          func() time.Time
	urlValidator func(string) error
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithURLValidator overrides the URL validation function (default: horosafe.ValidateURL).
// Use in tests with httptest servers that listen on loopback addresses.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// NewRedisLocker returns a Locker shared by every process using client.
// Locks expire after ttl if their holder dies.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) Locker {
	return lock.NewRedis(client, ttl, logger)
}

// WithLocker sets the run locker. Default: an in-process locker.
func WithLocker(l Locker) ServiceOption {
	return func(svc *Service) { svc.locker = l }
}

// WithClock overrides the clock used for window planning.
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = now }
}

// WithRouter sets the connectivity router carrying the scorer route.
func WithRouter(r *connectivity.Router) ServiceOption {
	return func(svc *Service) { svc.router = r }
}

// WithScorer replaces the routed scorer trigger.
func WithScorer(s Scorer) ServiceOption {
	return func(svc *Service) { svc.scorer = s }
}

// New creates a Service on db. The schema is applied; the source named by
// cfg.OrgName must be seeded with EnsureSource before runs succeed.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("requester: apply schema: %w", err)
	}

	svc := &Service{
		db:           db,
		config:       cfg,
		logger:       logger,
		now:          time.Now,
		urlValidator: horosafe.ValidateURL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.store = store.NewStore(db, store.WithClock(svc.now))
	if svc.locker == nil {
		svc.locker = lock.NewLocal()
	}
	if svc.router == nil {
		svc.router = connectivity.New(connectivity.WithLogger(logger))
	}

	if err := observability.Init(db); err != nil {
		return nil, fmt.Errorf("requester: init metrics: %w", err)
	}
	if err := connectivity.Init(db); err != nil {
		return nil, fmt.Errorf("requester: init routes: %w", err)
	}
	if svc.scorer == nil {
		scfg := scoring.Config{
			Endpoint:   cfg.Scoring.Endpoint,
			Strategy:   cfg.Scoring.Strategy,
			Timeout:    cfg.Scoring.Timeout,
			MaxRetries: cfg.Scoring.MaxRetries,
		}
		err := scoring.Setup(context.Background(), db, svc.router, scfg, logger,
			connectivity.WithEndpointValidator(svc.urlValidator))
		if err != nil {
			return nil, fmt.Errorf("requester: scorer route: %w", err)
		}
		svc.scorer = scoring.NewTrigger(svc.router, scfg, logger)
	}

	svc.reporter = diag.Nop{}
	if cfg.DiagnosticsDir != "" {
		svc.reporter = diag.NewWriter(cfg.DiagnosticsDir, logger)
	}

	f := fetch.New(fetch.Config{
		Timeout:      cfg.Fetch.Timeout,
		MaxBytes:     cfg.Fetch.MaxBytes,
		UserAgent:    cfg.Fetch.UserAgent,
		URLValidator: svc.urlValidator,
		Logger:       logger,
	})
	p, err := pipeline.New(pipeline.Config{
		OrgName:          cfg.OrgName,
		ActivateRequests: cfg.ActivateRequests,
		WindowDays:       cfg.RequestWindowDays,
		Locale:           query.Locale{Language: cfg.Fetch.Language, Country: cfg.Fetch.Country},
	}, pipeline.Deps{
		Store:    svc.store,
		Fetcher:  f,
		Ingester: ingest.NewWriter(svc.store, svc.reporter, logger),
		Scorer:   svc.scorer,
		Reporter: svc.reporter,
		Logger:   logger,
		Now:      svc.now,
	})
	if err != nil {
		return nil, err
	}
	svc.metrics = observability.NewMetricsManager(db, 100, 5*time.Second, logger)
	svc.runner = meteredRunner{next: p, metrics: svc.metrics}
	return svc, nil
}

// Config returns the effective configuration.
func (svc *Service) Config() Config { return *svc.config }

// EnsureSource seeds the configured source and its attribution entity.
func (svc *Service) EnsureSource(ctx context.Context) (*Source, error) {
	if err := svc.urlValidator(svc.config.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidInput, err)
	}
	if !strings.HasSuffix(svc.config.BaseURL, "/") {
		return nil, fmt.Errorf("%w: base url must end with /", ErrInvalidInput)
	}
	return svc.store.EnsureSource(ctx, svc.config.OrgName, svc.config.BaseURL)
}

func (svc *Service) source(ctx context.Context) (*Source, error) {
	src, err := svc.store.FindSourceByName(ctx, svc.config.OrgName)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("requester: %w: %q", errs.ErrSourceNotFound, svc.config.OrgName)
	}
	return src, nil
}

// RunOnce runs one keyword triple. It returns ErrLocked when the same
// triple is already running.
func (svc *Service) RunOnce(ctx context.Context, prm Params) (*Outcome, error) {
	src, err := svc.source(ctx)
	if err != nil {
		return nil, err
	}
	release, err := svc.locker.Acquire(ctx, lock.Key(src.ID, prm.And, prm.Or, prm.Not))
	if err != nil {
		return nil, err
	}
	defer release()
	return svc.runner.Run(ctx, prm)
}

// RunAll runs every enabled query set once and advances their cursors.
func (svc *Service) RunAll(ctx context.Context) ([]SetResult, error) {
	sched, err := svc.scheduler(ctx)
	if err != nil {
		return nil, err
	}
	return sched.RunAll(ctx), nil
}

func (svc *Service) scheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	src, err := svc.source(ctx)
	if err != nil {
		return nil, err
	}
	return scheduler.New(svc.store, svc.runner, svc.locker, src.ID, scheduler.Config{
		CheckInterval: svc.config.Scheduler.CheckInterval,
		LookbackDays:  svc.config.Scheduler.LookbackDays,
	}, svc.now, svc.logger), nil
}

// AddQuerySet persists a recurring keyword triple. startDate, when set,
// becomes the initial cursor.
func (svc *Service) AddQuerySet(ctx context.Context, and, or, not, startDate string) (*QuerySet, error) {
	and, or, not = strings.TrimSpace(and), strings.TrimSpace(or), strings.TrimSpace(not)
	if and == "" && or == "" {
		return nil, fmt.Errorf("%w: and or or keywords are required", ErrInvalidInput)
	}
	if startDate != "" {
		if _, err := window.ParseDate(startDate); err != nil {
			return nil, &errs.InvalidDateError{Field: "start_date", Value: startDate, Err: err}
		}
	}
	src, err := svc.source(ctx)
	if err != nil {
		return nil, err
	}
	qs := &QuerySet{
		SourceID:          src.ID,
		AndString:         and,
		OrString:          or,
		NotString:         not,
		Signature:         query.Signature(and, or, not),
		LastProcessedDate: startDate,
		Enabled:           true,
	}
	if err := svc.store.CreateQuerySet(ctx, qs); err != nil {
		return nil, err
	}
	svc.logger.Info("requester: query set added", "id", qs.ID, "and", and, "or", or, "not", not)
	return qs, nil
}

// SetQuerySetEnabled enables or disables a query set.
func (svc *Service) SetQuerySetEnabled(ctx context.Context, id string, enabled bool) error {
	qs, err := svc.store.GetQuerySet(ctx, id)
	if err != nil {
		return err
	}
	if qs == nil {
		return fmt.Errorf("%w: unknown query set %q", ErrInvalidInput, id)
	}
	return svc.store.SetQuerySetEnabled(ctx, id, enabled)
}

// ListQuerySets returns every query set of the configured source.
func (svc *Service) ListQuerySets(ctx context.Context) ([]*QuerySet, error) {
	src, err := svc.source(ctx)
	if err != nil {
		return nil, err
	}
	return svc.store.ListQuerySets(ctx, src.ID, false)
}

// ListRequests returns the request history of the configured source,
// newest first.
func (svc *Service) ListRequests(ctx context.Context, limit int) ([]*Request, error) {
	src, err := svc.source(ctx)
	if err != nil {
		return nil, err
	}
	return svc.store.ListRequests(ctx, src.ID, limit)
}

// ListArticles returns stored articles newest first, optionally restricted
// to one request.
func (svc *Service) ListArticles(ctx context.Context, requestID string, limit int) ([]*Article, error) {
	return svc.store.ListArticles(ctx, requestID, limit)
}

// GetArticleContent returns the markdown body of an article, or nil.
func (svc *Service) GetArticleContent(ctx context.Context, articleID string) (*ArticleContent, error) {
	return svc.store.GetArticleContent(ctx, articleID)
}

// Start launches the scheduler loop and the route watcher. Non-blocking.
func (svc *Service) Start(ctx context.Context) error {
	sched, err := svc.scheduler(ctx)
	if err != nil {
		return err
	}
	go svc.router.Watch(ctx, svc.db, 5*time.Second)
	go sched.Run(ctx)
	svc.logger.Info("requester: started", "org", svc.config.OrgName,
		"activate_requests", svc.config.ActivateRequests,
		"check_interval", svc.config.Scheduler.CheckInterval.String())
	return nil
}

// Close shuts down the service.
func (svc *Service) Close() error {
	err := svc.router.Close()
	svc.metrics.Close()
	svc.logger.Info("requester: closed")
	return err
}
