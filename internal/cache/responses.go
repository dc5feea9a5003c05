package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/roach88/feedsync/internal/connectivity"
)

// ResponseKeyPrefix prefixes every ResponseCache record key.
const ResponseKeyPrefix = "cache_"

// DefaultResponseTTL is how long a ResponseCache record stays fresh.
const DefaultResponseTTL = 24 * time.Hour

var (
	// ErrNoCachedData is returned by ResponseCache.Fetch for an offline GET
	// with no fresh record.
	ErrNoCachedData = errors.New("offline: no cached data available")

	// ErrOfflineWrite is returned by ResponseCache.Fetch for an offline
	// non-GET request. Writes go through the action queue instead.
	ErrOfflineWrite = errors.New("offline: action should be queued")
)

// KV is the durable key/value surface ResponseCache persists to.
type KV interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	PutJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type record struct {
	Data      json.RawMessage `json:"data"`
	StoredAt  int64           `json:"storedAt"`
	ExpiresAt int64           `json:"expiresAt"`
}

func (r record) expired(now time.Time) bool {
	return now.UnixMilli() > r.ExpiresAt
}

// ResponseCache holds decoded JSON responses keyed by URL with an expiry,
// in memory and in durable storage.
type ResponseCache struct {
	kv      KV
	fetcher Fetcher
	status  connectivity.Status
	ttl     time.Duration
	now     func() time.Time

	mu  sync.Mutex
	mem map[string]record
}

// NewResponseCache creates a ResponseCache. A ttl of zero uses DefaultResponseTTL.
func NewResponseCache(kv KV, f Fetcher, status connectivity.Status, ttl time.Duration, now func() time.Time) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	if now == nil {
		now = time.Now
	}
	return &ResponseCache{
		kv:      kv,
		fetcher: f,
		status:  status,
		ttl:     ttl,
		now:     now,
		mem:     make(map[string]record),
	}
}

// Set stores data under key in memory and durably.
func (c *ResponseCache) Set(ctx context.Context, key string, data json.RawMessage) error {
	now := c.now()
	rec := record{
		Data:      data,
		StoredAt:  now.UnixMilli(),
		ExpiresAt: now.Add(c.ttl).UnixMilli(),
	}
	c.mu.Lock()
	c.mem[key] = rec
	c.mu.Unlock()

	if err := c.kv.PutJSON(ctx, ResponseKeyPrefix+key, rec); err != nil {
		return fmt.Errorf("response cache set %s: %w", key, err)
	}
	return nil
}

// Get returns the fresh record for key. Expired durable records are deleted.
func (c *ResponseCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	now := c.now()

	c.mu.Lock()
	rec, ok := c.mem[key]
	if ok && rec.expired(now) {
		delete(c.mem, key)
		ok = false
	}
	c.mu.Unlock()
	if ok {
		return rec.Data, true
	}

	found, err := c.kv.GetJSON(ctx, ResponseKeyPrefix+key, &rec)
	if err != nil {
		slog.Warn("response cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	if rec.expired(now) {
		if err := c.kv.Delete(ctx, ResponseKeyPrefix+key); err != nil {
			slog.Warn("response cache delete failed", "key", key, "error", err)
		}
		return nil, false
	}

	c.mu.Lock()
	c.mem[key] = rec
	c.mu.Unlock()
	return rec.Data, true
}

// ClearExpired deletes every expired durable record and returns how many
// were removed. Unreadable records are removed too.
func (c *ResponseCache) ClearExpired(ctx context.Context) (int, error) {
	keys, err := c.kv.Keys(ctx, ResponseKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("clear expired: %w", err)
	}
	now := c.now()
	removed := 0
	for _, k := range keys {
		var rec record
		found, err := c.kv.GetJSON(ctx, k, &rec)
		if found && err == nil && !rec.expired(now) {
			continue
		}
		if err := c.kv.Delete(ctx, k); err != nil {
			return removed, fmt.Errorf("clear expired: %w", err)
		}
		removed++

		c.mu.Lock()
		delete(c.mem, strings.TrimPrefix(k, ResponseKeyPrefix))
		c.mu.Unlock()
	}
	return removed, nil
}

// Clear deletes every record.
func (c *ResponseCache) Clear(ctx context.Context) error {
	keys, err := c.kv.Keys(ctx, ResponseKeyPrefix)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	for _, k := range keys {
		if err := c.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	c.mu.Lock()
	c.mem = make(map[string]record)
	c.mu.Unlock()
	return nil
}

// Fetch performs req, caching successful JSON GET responses. Offline, a GET
// is answered from a fresh record or fails with ErrNoCachedData, and any
// other method fails with ErrOfflineWrite. Online transport failures fall
// back to a fresh record when one exists.
func (c *ResponseCache) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	key := RequestKey(req.URL)
	isGet := req.Method == "" || req.Method == http.MethodGet

	if c.status != nil && !c.status.Online() {
		if !isGet {
			return nil, ErrOfflineWrite
		}
		if data, ok := c.Get(ctx, key); ok {
			return cachedJSON(data), nil
		}
		return nil, ErrNoCachedData
	}

	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		if isGet {
			if data, ok := c.Get(ctx, key); ok {
				return cachedJSON(data), nil
			}
		}
		return nil, err
	}
	if isGet && resp.OK() && json.Valid(resp.Body) {
		if err := c.Set(ctx, key, resp.Body); err != nil {
			slog.Warn("response cache write failed", "key", key, "error", err)
		}
	}
	return resp, nil
}

func cachedJSON(data json.RawMessage) *Response {
	return &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   data,
		Source: SourceCache,
	}
}
