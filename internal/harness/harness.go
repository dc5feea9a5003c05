package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/cache"
	"github.com/roach88/feedsync/internal/config"
	"github.com/roach88/feedsync/internal/connectivity"
	"github.com/roach88/feedsync/internal/engine"
	"github.com/roach88/feedsync/internal/notify"
	"github.com/roach88/feedsync/internal/optimistic"
	"github.com/roach88/feedsync/internal/queue"
	"github.com/roach88/feedsync/internal/store"
	"github.com/roach88/feedsync/internal/testutil"
)

// Epoch is the fake clock's start time. Action ids in traces are derived
// from it.
var Epoch = time.UnixMilli(1700000000000).UTC()

// Harness runs one scenario against a real engine backed by a fake server.
type Harness struct {
	scenario   *Scenario
	cfg        config.Config
	engine     *engine.Engine
	clock      *testutil.FakeClock
	dispatcher *testutil.FakeDispatcher
	monitor    *connectivity.Monitor
	signals    <-chan notify.Signal
	logger     *slog.Logger
	ids        int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh database in a temporary directory. Replay
// runs one action at a time so dispatch order is deterministic.
//
// Execution flow:
//  1. Build the engine over the fake server and clocks
//  2. Start it and seed the board
//  3. Execute steps, waiting for background work after each
//  4. Capture final state and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "feedsync-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "harness.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	profile := scenario.Profile
	if profile == "" {
		profile = config.ProfileMobile
	}
	cfg, err := config.Default(profile)
	if err != nil {
		return nil, err
	}
	cfg.Queue.MaxInFlight = 1

	h := &Harness{
		scenario:   scenario,
		cfg:        cfg,
		clock:      testutil.NewFakeClock(Epoch),
		dispatcher: testutil.NewFakeDispatcher(),
		monitor:    connectivity.NewMonitor(scenario.Online),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, key := range scenario.Server.Fail {
		h.dispatcher.Fail(key)
	}

	h.engine = engine.New(st, cfg,
		engine.WithDispatcher(h.dispatcher),
		engine.WithFetcher(cache.FetcherFunc(h.serve)),
		engine.WithMonitor(h.monitor),
		engine.WithClock(h.clock.Now),
		engine.WithViewClock(h.clock),
		engine.WithIDSuffix(h.nextSuffix),
	)

	signals, unsubscribe := h.engine.Signals().Subscribe(256)
	defer unsubscribe()
	h.signals = signals

	ctx := context.Background()
	result := NewResult()

	if err := h.engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	result.AddEvent("start", map[string]any{"online": scenario.Online}, map[string]any{
		"pending": h.engine.Queue().Len(),
	})

	board := h.engine.Coordinator().Board()
	for _, item := range scenario.Seed {
		board.Seed(optimistic.ItemState{
			PostID:     item.Post,
			Author:     item.Author,
			Liked:      item.Liked,
			Likes:      item.Likes,
			Bookmarked: item.Bookmarked,
			Bookmarks:  item.Bookmarks,
			Reclipped:  item.Reclipped,
			Reclips:    item.Reclips,
			Following:  item.Following,
		})
	}

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		h.engine.Wait()
		h.collectSignals(result)
	}

	h.capture(ctx, result)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) nextSuffix() string {
	h.ids++
	return fmt.Sprintf("%09d", h.ids)
}

// serve answers cache fetches from the scenario's routes. Unknown paths are
// a 404.
func (h *Harness) serve(_ context.Context, req *http.Request) (*cache.Response, error) {
	route, ok := h.scenario.Server.Routes[req.URL.RequestURI()]
	if !ok {
		route, ok = h.scenario.Server.Routes[req.URL.Path]
	}
	if !ok {
		return &cache.Response{Status: http.StatusNotFound, Header: http.Header{}, Source: cache.SourceNetwork}, nil
	}
	header := http.Header{}
	if route.ContentType != "" {
		header.Set("Content-Type", route.ContentType)
	}
	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &cache.Response{Status: status, Header: header, Body: []byte(route.Body), Source: cache.SourceNetwork}, nil
}

func (h *Harness) execute(ctx context.Context, step Step, result *Result) error {
	user := h.scenario.User
	coord := h.engine.Coordinator()

	switch {
	case step.Connectivity != "":
		online := step.Connectivity == "online"
		changed := h.monitor.Set(online)
		res := map[string]any{"changed": changed}
		// Mirrors Engine.Run, which drains on the offline->online edge.
		if changed && online {
			res["drain"] = reportMap(h.engine.Resume(ctx))
		}
		result.AddEvent("connectivity", map[string]any{"online": online}, res)

	case step.Toggle != nil:
		kind, err := action.ParseKind(step.Toggle.Kind)
		if err != nil {
			return err
		}
		var res optimistic.Result
		switch kind {
		case action.KindLike:
			res, err = coord.ToggleLike(ctx, user, step.Toggle.Post)
		case action.KindBookmark:
			res, err = coord.ToggleBookmark(ctx, user, step.Toggle.Post)
		case action.KindReclip:
			res, err = coord.ToggleReclip(ctx, user, step.Toggle.Post)
		case action.KindFollow:
			res, err = coord.ToggleFollow(ctx, user, step.Toggle.Post)
		default:
			return fmt.Errorf("%s cannot be toggled", kind)
		}
		out := itemMap(res.State)
		out["queued"] = res.Queued
		out["reverted"] = res.Reverted
		if res.ActionID != "" {
			out["action_id"] = res.ActionID
		}
		if err != nil {
			out["error"] = err.Error()
		}
		result.AddEvent("toggle", map[string]any{"kind": kind.String(), "post": step.Toggle.Post}, out)

	case step.Post != nil:
		body, err := json.Marshal(step.Post.Body)
		if err != nil {
			return fmt.Errorf("post body: %w", err)
		}
		created, err := coord.CreatePost(ctx, user, body)
		result.AddEvent("post", nil, createdMap(created, err))

	case step.Comment != nil:
		created, err := coord.AddComment(ctx, user, step.Comment.Post, step.Comment.Text)
		result.AddEvent("comment", map[string]any{"post": step.Comment.Post}, createdMap(created, err))

	case step.View != nil:
		dwell := h.cfg.Views.Dwell.Std()
		if step.View.Dwell != "" {
			dwell, _ = time.ParseDuration(step.View.Dwell)
		}
		viewer := h.engine.Views(user)
		viewer.Visible(step.View.Post)
		h.clock.Advance(dwell)
		if step.View.Hide {
			viewer.Hidden(step.View.Post)
		}
		result.AddEvent("view", map[string]any{"post": step.View.Post, "dwell": dwell.String()}, map[string]any{
			"state": viewer.State(step.View.Post).String(),
		})

	case step.Fetch != nil:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.Cache.Origin+step.Fetch.URL, nil)
		if err != nil {
			return fmt.Errorf("fetch request: %w", err)
		}
		resp, err := h.engine.Cache().Fetch(ctx, req)
		out := map[string]any{}
		if err != nil {
			out["error"] = err.Error()
		} else {
			out["status"] = resp.Status
			out["source"] = string(resp.Source)
			out["body"] = string(resp.Body)
		}
		result.AddEvent("fetch", map[string]any{"url": step.Fetch.URL}, out)

	case step.Drain:
		result.AddEvent("drain", nil, reportMap(h.engine.Queue().Drain(ctx)))

	case len(step.Fail) > 0:
		for _, key := range step.Fail {
			h.dispatcher.Fail(key)
		}
		result.AddEvent("fail", map[string]any{"keys": step.Fail}, nil)

	case step.Recover:
		h.dispatcher.Recover()
		result.AddEvent("recover", nil, nil)

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		result.AddEvent("advance", map[string]any{"by": d.String()}, nil)

	default:
		return fmt.Errorf("empty step")
	}

	h.logger.Debug("step executed", "seq", len(result.Trace))
	return nil
}

func (h *Harness) collectSignals(result *Result) {
	for {
		select {
		case s := <-h.signals:
			result.Signals = append(result.Signals, string(s.Type))
		default:
			return
		}
	}
}

func (h *Harness) capture(ctx context.Context, result *Result) {
	for _, rec := range h.engine.Queue().Pending() {
		result.Pending = append(result.Pending, rec.ID)
	}
	result.Dispatched = append(result.Dispatched, h.dispatcher.Keys()...)

	if len(h.scenario.Seed) > 0 {
		result.Items = make(map[string]map[string]any, len(h.scenario.Seed))
		board := h.engine.Coordinator().Board()
		for _, item := range h.scenario.Seed {
			result.Items[item.Post] = itemMap(board.Get(item.Post))
		}
	}

	stats, err := h.engine.Cache().Stats(ctx)
	if err != nil {
		h.logger.Warn("cache stats unavailable", "error", err)
		return
	}
	result.Partitions = make(map[string]int, len(stats))
	for p, n := range stats {
		result.Partitions[string(p)] = n
	}
}

func itemMap(s optimistic.ItemState) map[string]any {
	return map[string]any{
		"liked":      s.Liked,
		"likes":      s.Likes,
		"bookmarked": s.Bookmarked,
		"bookmarks":  s.Bookmarks,
		"reclipped":  s.Reclipped,
		"reclips":    s.Reclips,
		"following":  s.Following,
	}
}

func createdMap(c optimistic.Created, err error) map[string]any {
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{"id": c.ID, "queued": c.Queued}
}

func reportMap(r queue.Report) map[string]any {
	return map[string]any{
		"skipped":   r.Skipped,
		"attempted": r.Attempted,
		"succeeded": r.Succeeded,
		"failed":    r.Failed,
		"remaining": r.Remaining,
	}
}
