package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/api"
	"github.com/roach88/feedsync/internal/cache"
	"github.com/roach88/feedsync/internal/config"
	"github.com/roach88/feedsync/internal/connectivity"
	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/notify"
	"github.com/roach88/feedsync/internal/optimistic"
	"github.com/roach88/feedsync/internal/queue"
	"github.com/roach88/feedsync/internal/store"
	"github.com/roach88/feedsync/internal/views"
)

// Engine owns every offline-first component of one client.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - everything else: safe from any goroutine
type Engine struct {
	store  *store.Store
	cfg    config.Config
	now    func() time.Time
	client *http.Client

	monitor    *connectivity.Monitor
	signals    *notify.Broadcaster
	dispatcher action.Dispatcher
	fetcher    cache.Fetcher
	viewClock  views.Clock
	suffix     func() string

	queue       *queue.Queue
	cache       *cache.Intermediary
	responses   *cache.ResponseCache
	feeds       *feed.Snapshots
	coordinator *optimistic.Coordinator

	mu      sync.Mutex
	viewers map[string]*views.Debouncer
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatcher replaces the API client used for direct calls and replay.
func WithDispatcher(d action.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithFetcher replaces the network fetcher behind the cache.
func WithFetcher(f cache.Fetcher) Option {
	return func(e *Engine) {
		e.fetcher = f
	}
}

// WithMonitor supplies the connectivity monitor.
func WithMonitor(m *connectivity.Monitor) Option {
	return func(e *Engine) {
		e.monitor = m
	}
}

// WithClock sets the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDSuffix sets the generator of action id suffixes.
func WithIDSuffix(suffix func() string) Option {
	return func(e *Engine) {
		e.suffix = suffix
	}
}

// WithViewClock sets the timer source of view debouncers.
func WithViewClock(c views.Clock) Option {
	return func(e *Engine) {
		e.viewClock = c
	}
}

// WithHTTPClient sets the client used for network requests.
// It must not route through the engine's own Transport.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.client = c
	}
}

// New wires an Engine over st.
func New(st *store.Store, cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		cfg:     cfg,
		now:     time.Now,
		signals: notify.NewBroadcaster(),
		viewers: make(map[string]*views.Debouncer),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.client == nil {
		e.client = &http.Client{Timeout: cfg.API.Timeout.Std()}
	}
	if e.monitor == nil {
		e.monitor = connectivity.NewMonitor(true)
	}
	if e.dispatcher == nil {
		e.dispatcher = api.NewClient(api.Config{
			BaseURL:        cfg.API.BaseURL,
			Timeout:        cfg.API.Timeout.Std(),
			MaxRetries:     cfg.API.MaxRetries,
			BreakerTrips:   cfg.API.BreakerTrips,
			BreakerTimeout: cfg.API.BreakerTimeout.Std(),
		}, api.StaticToken(cfg.Token), e.client)
	}
	if e.fetcher == nil {
		e.fetcher = &cache.HTTPFetcher{Client: e.client}
	}

	queueOpts := []queue.Option{
		queue.WithClock(e.now),
		queue.WithMaxInFlight(cfg.Queue.MaxInFlight),
	}
	if e.suffix != nil {
		queueOpts = append(queueOpts, queue.WithSuffix(e.suffix))
	}
	e.queue = queue.New(st, e.dispatcher, e.monitor, e.signals, queueOpts...)
	e.cache = cache.New(cacheConfig(cfg), st, e.fetcher, e.monitor, cache.WithClock(e.now))
	e.responses = cache.NewResponseCache(st, e.fetcher, e.monitor, cfg.Cache.ResponseTTL.Std(), e.now)
	e.feeds = feed.New(st)
	e.coordinator = optimistic.NewCoordinator(optimistic.NewBoard(), e.queue, e.dispatcher, e.monitor,
		optimistic.WithCoalescing(cfg.Optimistic.CoalesceInFlight),
	)
	return e
}

func cacheConfig(cfg config.Config) cache.Config {
	limits := make(cache.Limits, len(cfg.Cache.Limits))
	for name, n := range cfg.Cache.Limits {
		p, err := cache.ParsePartition(name)
		if err != nil {
			slog.Warn("ignoring cache limit", "partition", name, "error", err)
			continue
		}
		limits[p] = n
	}
	return cache.Config{
		Names: cache.Names{
			Namespace: cfg.Cache.Namespace,
			Profile:   cfg.Profile,
			Version:   cfg.Cache.Version,
		},
		Limits:           limits,
		Origin:           cfg.Cache.Origin,
		ShellFiles:       cfg.Cache.Shell,
		OfflinePage:      cfg.Cache.OfflinePage,
		CompactJSON:      cfg.Cache.CompactJSON,
		MaxRevalidations: cfg.Cache.MaxRevalidations,
	}
}

// Start restores the persisted queue, purges stale cache partitions and
// precaches the app shell. A shell that cannot be fetched (offline start)
// is logged, not returned.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.queue.Load(ctx); err != nil {
		return &StartError{Code: ErrCodeQueueLoad, Message: "restore queue", Err: err}
	}
	if _, err := e.cache.Activate(ctx); err != nil {
		return &StartError{Code: ErrCodeCacheActivate, Message: "purge stale partitions", Err: err}
	}
	if e.monitor.Online() {
		if err := e.cache.Install(ctx); err != nil {
			slog.Warn("app shell not fully cached", "error", err)
		}
	}
	if n, err := e.responses.ClearExpired(ctx); err != nil {
		slog.Warn("expired responses not cleared", "error", err)
	} else if n > 0 {
		slog.Debug("expired responses cleared", "count", n)
	}
	slog.Info("engine started", "profile", e.cfg.Profile, "pending", e.queue.Len(), "online", e.monitor.Online())
	return nil
}

// Run drains the queue on every offline->online transition until ctx is
// done. When a probe URL is configured the prober runs alongside and
// drives the monitor.
func (e *Engine) Run(ctx context.Context) error {
	changes, cancel := e.monitor.Subscribe()
	defer cancel()

	var wg conc.WaitGroup
	defer wg.Wait()
	if prober := e.prober(); prober != nil {
		wg.Go(func() {
			if err := prober.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("prober stopped", "error", err)
			}
		})
	}

	slog.Info("engine running")
	e.Resume(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopping")
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Online {
				slog.Info("connectivity restored")
				e.queue.Drain(ctx)
			} else {
				slog.Info("connectivity lost")
			}
		}
	}
}

// Probe checks connectivity once against the configured probe URL and
// updates the monitor. Without a probe URL the monitor is left as is.
func (e *Engine) Probe(ctx context.Context) bool {
	if prober := e.prober(); prober != nil {
		return prober.Check(ctx)
	}
	return e.monitor.Online()
}

func (e *Engine) prober() *connectivity.Prober {
	if e.cfg.Probe.URL == "" {
		return nil
	}
	return &connectivity.Prober{
		URL:      e.cfg.Probe.URL,
		Interval: e.cfg.Probe.Interval.Std(),
		Client:   e.client,
		Monitor:  e.monitor,
	}
}

// Resume drains the queue when online. It is the lifecycle hook for the
// app regaining focus or a new version taking over.
func (e *Engine) Resume(ctx context.Context) queue.Report {
	return e.queue.Drain(ctx)
}

// Status is the state shown by an offline banner.
type Status struct {
	Online     bool                    `json:"online"`
	Pending    int                     `json:"pending"`
	Partitions map[cache.Partition]int `json:"partitions"`
}

// Status reports connectivity, queue depth and cache usage.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	stats, err := e.cache.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Online:     e.monitor.Online(),
		Pending:    e.queue.Len(),
		Partitions: stats,
	}, nil
}

// Views returns the view debouncer of userID, creating it on first use.
func (e *Engine) Views(userID string) *views.Debouncer {
	if userID == "" {
		userID = views.AnonymousUser
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.viewers[userID]; ok {
		return d
	}
	opts := []views.Option{
		views.WithDwell(e.cfg.Views.Dwell.Std()),
		views.WithThreshold(e.cfg.Views.Threshold),
	}
	if e.viewClock != nil {
		opts = append(opts, views.WithClock(e.viewClock))
	}
	d := views.New(userID, e.queue, e.dispatcher, e.monitor, opts...)
	e.viewers[userID] = d
	return d
}

// HTTPClient returns a client whose requests go through the cache.
func (e *Engine) HTTPClient() *http.Client {
	return &http.Client{Transport: &cache.Transport{Cache: e.cache}}
}

// Wait blocks until background drains, revalidations and view sends finish.
func (e *Engine) Wait() {
	e.queue.Wait()
	e.cache.Wait()
	e.mu.Lock()
	viewers := make([]*views.Debouncer, 0, len(e.viewers))
	for _, d := range e.viewers {
		viewers = append(viewers, d)
	}
	e.mu.Unlock()
	for _, d := range viewers {
		d.Wait()
	}
}

func (e *Engine) Queue() *queue.Queue { return e.queue }
func (e *Engine) Cache() *cache.Intermediary { return e.cache }
func (e *Engine) Responses() *cache.ResponseCache { return e.responses }
func (e *Engine) Feeds() *feed.Snapshots { return e.feeds }
func (e *Engine) Coordinator() *optimistic.Coordinator { return e.coordinator }
func (e *Engine) Monitor() *connectivity.Monitor { return e.monitor }
func (e *Engine) Signals() *notify.Broadcaster { return e.signals }
func (e *Engine) Dispatcher() action.Dispatcher { return e.dispatcher }
