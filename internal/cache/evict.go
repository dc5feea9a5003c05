package cache

import (
	"context"
	"log/slog"
)

// limit deletes the oldest insertions of p until its entry count is at most
// the configured limit. Must be called with writeMu held.
func (c *Intermediary) limit(ctx context.Context, p Partition) {
	bound := c.cfg.Limits[p]
	if bound <= 0 {
		return
	}
	name := c.cfg.Names.Name(p)
	keys, err := c.store.PartitionKeys(ctx, name)
	if err != nil {
		slog.Warn("cache eviction skipped", "partition", name, "error", err)
		return
	}
	if len(keys) <= bound {
		return
	}

	excess := keys[:len(keys)-bound]
	for _, key := range excess {
		if err := c.store.DeleteEntry(ctx, name, key); err != nil {
			slog.Warn("cache eviction failed", "partition", name, "key", key, "error", err)
			return
		}
	}
	slog.Debug("cache evicted", "partition", name, "count", len(excess))
}
