package cache

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

func (c *Intermediary) cacheFirst(ctx context.Context, req *http.Request, p Partition) *Response {
	key := RequestKey(req.URL)
	if cached, ok := c.matchAny(ctx, key); ok {
		return cached
	}
	resp, err := c.network(ctx, req)
	if err != nil {
		slog.Debug("static fetch failed", "key", key, "error", err)
		return offlineText()
	}
	if resp.OK() {
		c.put(ctx, p, key, resp)
	}
	return resp
}

// media stores only 200 responses. A failed fetch yields an empty 404 so
// image elements render their broken state instead of hanging.
func (c *Intermediary) media(ctx context.Context, req *http.Request) *Response {
	key := RequestKey(req.URL)
	if cached, ok := c.matchAny(ctx, key); ok {
		return cached
	}
	resp, err := c.network(ctx, req)
	if err != nil {
		slog.Debug("media fetch failed", "key", key, "error", err)
		return mediaPlaceholder()
	}
	if resp.Status == http.StatusOK {
		c.put(ctx, PartitionMedia, key, resp)
	}
	return resp
}

// staleWhileRevalidate answers from cache when it can and refreshes the
// entry in the background, so a later read sees the refreshed body.
func (c *Intermediary) staleWhileRevalidate(ctx context.Context, req *http.Request) *Response {
	key := RequestKey(req.URL)
	if cached, ok := c.matchAny(ctx, key); ok {
		c.refresh(ctx, req, key)
		return cached
	}
	resp, err := c.network(ctx, req)
	if err != nil {
		slog.Debug("feed fetch failed", "key", key, "error", err)
		return offlineAPI()
	}
	if resp.OK() {
		c.put(ctx, PartitionAPI, key, resp)
	}
	return resp
}

func (c *Intermediary) refresh(ctx context.Context, req *http.Request, key string) {
	if !c.online() {
		return
	}
	bg := context.WithoutCancel(ctx)
	clone := req.Clone(bg)
	c.background.Go(func() {
		_, _, _ = c.revalidate.Do(key, func() (any, error) {
			if err := c.sem.Acquire(bg, 1); err != nil {
				return nil, err
			}
			defer c.sem.Release(1)

			resp, err := c.network(bg, clone)
			if err != nil {
				slog.Debug("revalidation failed", "key", key, "error", err)
				return nil, err
			}
			if resp.OK() {
				c.put(bg, PartitionAPI, key, resp)
			}
			return nil, nil
		})
	})
}

func (c *Intermediary) networkFirstAPI(ctx context.Context, req *http.Request) *Response {
	key := RequestKey(req.URL)
	resp, err := c.network(ctx, req)
	if err == nil && !resp.failed() {
		if resp.OK() {
			c.put(ctx, PartitionAPI, key, resp)
		}
		return resp
	}
	if cached, ok := c.matchAny(ctx, key); ok {
		return cached
	}
	if err == nil {
		return resp
	}
	slog.Debug("api fetch failed", "key", key, "error", err)
	return offlineAPI()
}

// navigation falls back to the cached page, then the cached root document,
// then the cached offline page, then a built-in offline document.
func (c *Intermediary) navigation(ctx context.Context, req *http.Request) *Response {
	key := RequestKey(req.URL)
	resp, err := c.network(ctx, req)
	if err == nil && !resp.failed() {
		if resp.OK() {
			c.put(ctx, PartitionDynamic, key, resp)
		}
		return resp
	}

	for _, k := range []string{key, "/", RequestKey(&url.URL{Path: c.cfg.OfflinePage})} {
		if cached, ok := c.matchAny(ctx, k); ok {
			return cached
		}
	}
	if err == nil {
		return resp
	}
	slog.Debug("navigation failed", "key", key, "error", err)
	return offlinePage()
}
