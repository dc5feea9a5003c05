// Package engine wires the offline-first components together and drives
// them from connectivity changes.
//
// An Engine owns one durable store and builds on it:
//
//	cache.Intermediary   per-class caching of outbound requests
//	cache.ResponseCache  expiring "cache_<url>" records
//	queue.Queue          durable mutation queue with batch replay
//	optimistic.Coordinator
//	views.Debouncer      one per signed-in user
//	feed.Snapshots       last feed pages per user and tab
//
// Start restores the queue and prepares the cache. Run consumes
// connectivity transitions: every offline->online transition drains the
// queue once. Resume is the explicit "app came back" notification.
package engine
