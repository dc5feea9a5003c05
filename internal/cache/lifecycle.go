package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

// Install fetches the app shell into the static partition. Files that fail
// are reported together; the rest are still stored.
func (c *Intermediary) Install(ctx context.Context) error {
	var errs []error
	for _, file := range c.cfg.ShellFiles {
		if err := c.fetchInto(ctx, PartitionStatic, file); err != nil {
			errs = append(errs, fmt.Errorf("install %s: %w", file, err))
		}
	}
	slog.Info("cache installed", "files", len(c.cfg.ShellFiles), "failed", len(errs))
	return errors.Join(errs...)
}

// Activate deletes every stored partition that is not part of the current
// generation and returns the deleted names.
func (c *Intermediary) Activate(ctx context.Context) ([]string, error) {
	stored, err := c.store.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	var deleted []string
	for _, name := range stored {
		if slices.Contains(c.names, name) {
			continue
		}
		if err := c.store.DeletePartition(ctx, name); err != nil {
			return deleted, fmt.Errorf("activate: delete %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	if len(deleted) > 0 {
		slog.Info("cache partitions purged", "partitions", deleted)
	}
	return deleted, nil
}

// Precache fetches urls into the dynamic partition, subject to its limit.
// Failures are logged and skipped.
func (c *Intermediary) Precache(ctx context.Context, urls []string) int {
	stored := 0
	for _, u := range urls {
		if err := c.fetchInto(ctx, PartitionDynamic, u); err != nil {
			slog.Warn("precache failed", "url", u, "error", err)
			continue
		}
		stored++
	}
	return stored
}

func (c *Intermediary) fetchInto(ctx context.Context, p Partition, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(target), nil)
	if err != nil {
		return err
	}
	resp, err := c.network(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("status %d", resp.Status)
	}
	c.put(ctx, p, RequestKey(req.URL), resp)
	return nil
}

func (c *Intermediary) resolve(target string) string {
	if strings.Contains(target, "://") || c.origin == "" {
		return target
	}
	return c.origin + "/" + strings.TrimLeft(target, "/")
}

// Stats returns the entry count of every partition of the current generation.
func (c *Intermediary) Stats(ctx context.Context) (map[Partition]int, error) {
	out := make(map[Partition]int, len(Partitions))
	for _, p := range Partitions {
		keys, err := c.store.PartitionKeys(ctx, c.cfg.Names.Name(p))
		if err != nil {
			return nil, fmt.Errorf("stats %s: %w", p, err)
		}
		out[p] = len(keys)
	}
	return out, nil
}

// Clear empties partition p.
func (c *Intermediary) Clear(ctx context.Context, p Partition) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.store.DeletePartition(ctx, c.cfg.Names.Name(p))
}

// ClearAll empties every partition of the current generation.
func (c *Intermediary) ClearAll(ctx context.Context) error {
	for _, p := range Partitions {
		if err := c.Clear(ctx, p); err != nil {
			return fmt.Errorf("clear %s: %w", p, err)
		}
	}
	return nil
}
