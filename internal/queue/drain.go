package queue

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/notify"
)

var tracer = otel.Tracer("github.com/roach88/feedsync/internal/queue")

// Report summarizes one drain.
type Report struct {
	Skipped   bool     `json:"skipped"`
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Remaining int      `json:"remaining"`
	FailedIDs []string `json:"failedIds,omitempty"`
}

type attempt struct {
	id string
	ok bool
}

// Drain replays a snapshot of the queue. It does nothing while offline or
// when the queue is empty. Otherwise it broadcasts SYNC_START, dispatches
// every snapshot entry concurrently in creation order, removes the
// accepted ones from the current list, persists it and broadcasts
// SYNC_COMPLETE. Per-action failures are logged and never returned.
//
// Entries are started in order but may complete in any order.
func (q *Queue) Drain(ctx context.Context) Report {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	if !q.online() {
		return Report{Skipped: true, Remaining: q.Len()}
	}
	snapshot := q.Pending()
	if len(snapshot) == 0 {
		return Report{Skipped: true}
	}

	ctx, span := tracer.Start(ctx, "queue.drain", trace.WithAttributes(attribute.Int("pending", len(snapshot))))
	defer span.End()

	q.publish(notify.Signal{Type: notify.SyncStarted, Pending: len(snapshot), At: q.now()})
	slog.Info("sync started", "pending", len(snapshot))

	p := pool.NewWithResults[attempt]()
	if q.maxInFlight > 0 {
		p = p.WithMaxGoroutines(q.maxInFlight)
	}
	for _, rec := range snapshot {
		p.Go(func() attempt {
			return attempt{id: rec.ID, ok: q.replay(ctx, rec)}
		})
	}
	results := p.Wait()

	accepted := make(map[string]bool, len(results))
	report := Report{Attempted: len(snapshot)}
	for _, r := range results {
		if r.ok {
			accepted[r.id] = true
			report.Succeeded++
		}
	}
	for _, rec := range snapshot {
		if !accepted[rec.ID] {
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, rec.ID)
		}
	}

	q.mu.Lock()
	kept := make([]action.Queued, 0, len(q.actions))
	for _, rec := range q.actions {
		if !accepted[rec.ID] {
			kept = append(kept, rec)
		}
	}
	q.actions = kept
	q.persistLocked(ctx)
	report.Remaining = len(kept)
	q.mu.Unlock()

	span.SetAttributes(
		attribute.Int("succeeded", report.Succeeded),
		attribute.Int("failed", report.Failed),
	)
	q.publish(notify.Signal{
		Type:      notify.SyncComplete,
		Pending:   report.Remaining,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		At:        q.now(),
	})
	slog.Info("sync complete", "succeeded", report.Succeeded, "failed", report.Failed, "remaining", report.Remaining)
	return report
}

// Retry is the explicit user-triggered drain.
func (q *Queue) Retry(ctx context.Context) Report {
	return q.Drain(ctx)
}

func (q *Queue) replay(ctx context.Context, rec action.Queued) bool {
	out, err := q.dispatcher.Dispatch(ctx, rec.Intent())
	if err != nil {
		slog.Warn("replay failed", "id", rec.ID, "kind", rec.Kind, "error", err)
		return false
	}
	if !out.OK {
		slog.Warn("replay rejected", "id", rec.ID, "kind", rec.Kind, "status", out.Status)
		return false
	}
	slog.Debug("replayed", "id", rec.ID, "kind", rec.Kind, "status", out.Status)
	return true
}
