// Package harness runs offline-sync scenarios against a fully wired engine.
//
// A scenario seeds posts, scripts the server, and then plays a sequence of
// steps (connectivity changes, gestures, views, fetches, drains). The
// server side is faked: the dispatcher succeeds unless a "kind:target" key
// has been scripted to fail, and fetches are answered from a route table.
// Time is a fake clock, so dwell timers and action ids are deterministic.
//
// # Scenario Format
//
//	name: like_offline_then_reconnect
//	description: "Queued likes replay on reconnect"
//	user: u9
//	online: false
//	seed:
//	  - post: p1
//	    author: u1
//	    likes: 10
//	server:
//	  fail: ["like:p2"]
//	  routes:
//	    /api/feed: { status: 200, body: '{"items":[]}' }
//	steps:
//	  - toggle: { kind: like, post: p1 }
//	  - connectivity: online
//	  - view: { post: p3 }
//	  - fetch: { url: /api/feed }
//	assertions:
//	  - type: pending
//	    count: 0
//	  - type: dispatched
//	    actions: ["like:p1"]
//	  - type: item
//	    post: p1
//	    expect: { liked: true, likes: 11 }
//
// Going online replays the queue once, as the engine's run loop would.
// The trace records one event per step and is compared against
// testdata/golden/<name>.golden.
package harness
