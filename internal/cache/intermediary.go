package cache

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/tdewolff/minify/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/feedsync/internal/connectivity"
	"github.com/roach88/feedsync/internal/store"
)

var tracer = otel.Tracer("github.com/roach88/feedsync/internal/cache")

// EntryStore is the durable partitioned entry storage.
type EntryStore interface {
	PutEntry(ctx context.Context, e store.Entry) error
	MatchEntry(ctx context.Context, partition, requestKey string) (*store.Entry, bool, error)
	MatchAny(ctx context.Context, partitions []string, requestKey string) (*store.Entry, bool, error)
	PartitionKeys(ctx context.Context, partition string) ([]string, error)
	DeleteEntry(ctx context.Context, partition, requestKey string) error
	DeletePartition(ctx context.Context, partition string) error
	Partitions(ctx context.Context) ([]string, error)
}

// Config controls an Intermediary.
type Config struct {
	Names  Names
	Limits Limits

	// Origin is "scheme://host" of the application. Requests to other
	// origins pass through uncached. Empty treats every http(s) request as
	// same-origin.
	Origin string

	// ShellFiles are precached by Install and always classified static.
	ShellFiles []string

	// OfflinePage is the cached document served when navigation fails and
	// the root document is not cached.
	OfflinePage string

	// CompactJSON minifies JSON bodies before they are stored.
	CompactJSON bool

	// MaxRevalidations bounds concurrent background revalidations.
	MaxRevalidations int64
}

// Intermediary serves requests according to their class.
type Intermediary struct {
	cfg     Config
	names   []string
	origin  string
	shell   map[string]bool
	store   EntryStore
	fetcher Fetcher
	status  connectivity.Status
	now     func() time.Time

	minifier *minify.M

	writeMu sync.Mutex // serializes write+evict so bounds hold between writes

	revalidate singleflight.Group
	sem        *semaphore.Weighted
	background conc.WaitGroup
}

// Option configures an Intermediary.
type Option func(*Intermediary)

// WithClock sets the time source for stored entries.
func WithClock(now func() time.Time) Option {
	return func(c *Intermediary) {
		c.now = now
	}
}

// New creates an Intermediary. status may be nil, which means always online.
func New(cfg Config, st EntryStore, f Fetcher, status connectivity.Status, opts ...Option) *Intermediary {
	if len(cfg.ShellFiles) == 0 {
		cfg.ShellFiles = DefaultShellFiles
	}
	if cfg.OfflinePage == "" {
		cfg.OfflinePage = "/offline.html"
	}
	if cfg.MaxRevalidations <= 0 {
		cfg.MaxRevalidations = 4
	}
	if cfg.Names.Namespace == "" {
		cfg.Names.Namespace = "feedsync"
	}

	c := &Intermediary{
		cfg:     cfg,
		names:   cfg.Names.All(),
		origin:  strings.TrimRight(cfg.Origin, "/"),
		shell:   make(map[string]bool, len(cfg.ShellFiles)),
		store:   st,
		fetcher: f,
		status:  status,
		now:     time.Now,
		sem:     semaphore.NewWeighted(cfg.MaxRevalidations),
	}
	for _, p := range cfg.ShellFiles {
		c.shell[p] = true
	}
	if cfg.CompactJSON {
		c.minifier = newCompactor()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Names returns the storage names of the current partition generation.
func (c *Intermediary) Names() Names {
	return c.cfg.Names
}

// Fetch serves req. An error is returned only for passthrough requests whose
// network call failed; every cached class produces a response.
func (c *Intermediary) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	class := c.Classify(req)
	ctx, span := tracer.Start(ctx, "cache.fetch", trace.WithAttributes(
		attribute.String("class", class.String()),
		attribute.String("url", req.URL.String()),
	))
	defer span.End()

	var (
		resp *Response
		err  error
	)
	switch class {
	case ClassStatic:
		resp = c.cacheFirst(ctx, req, PartitionStatic)
	case ClassMedia:
		resp = c.media(ctx, req)
	case ClassFeed:
		resp = c.staleWhileRevalidate(ctx, req)
	case ClassAPI:
		resp = c.networkFirstAPI(ctx, req)
	case ClassNavigation:
		resp = c.navigation(ctx, req)
	default:
		resp, err = c.network(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("source", string(resp.Source)), attribute.Int("status", resp.Status))
	return resp, nil
}

// Wait blocks until background revalidations have finished.
func (c *Intermediary) Wait() {
	c.background.Wait()
}

func (c *Intermediary) online() bool {
	return c.status == nil || c.status.Online()
}

func (c *Intermediary) network(ctx context.Context, req *http.Request) (*Response, error) {
	if !c.online() {
		return nil, ErrOffline
	}
	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Source = SourceNetwork
	return resp, nil
}

func (c *Intermediary) match(ctx context.Context, p Partition, key string) (*Response, bool) {
	e, ok, err := c.store.MatchEntry(ctx, c.cfg.Names.Name(p), key)
	if err != nil {
		slog.Warn("cache lookup failed", "partition", p, "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return fromEntry(e), true
}

func (c *Intermediary) matchAny(ctx context.Context, key string) (*Response, bool) {
	e, ok, err := c.store.MatchAny(ctx, c.names, key)
	if err != nil {
		slog.Warn("cache lookup failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return fromEntry(e), true
}

// put stores resp in p and then trims p to its limit. Failures are logged.
func (c *Intermediary) put(ctx context.Context, p Partition, key string, resp *Response) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	name := c.cfg.Names.Name(p)
	err := c.store.PutEntry(ctx, store.Entry{
		Partition:  name,
		RequestKey: key,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       c.compact(resp.Header, resp.Body),
		StoredAt:   c.now(),
	})
	if err != nil {
		slog.Warn("cache write failed", "partition", name, "key", key, "error", err)
		return
	}
	c.limit(ctx, p)
}
