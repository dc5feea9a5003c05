// Package cache is the network intermediary that sits between the
// application and the network.
//
// Every outbound request is classified (static shell, media, feed listing,
// other API, navigation, passthrough) and served by the policy of its class:
//
//	static      cache-first into the static partition
//	media       cache-first, 200-only writes, empty 404 placeholder on failure
//	feed        stale-while-revalidate
//	api         network-first, cached copy or a structured 503 on failure
//	navigation  network-first, cached root or offline page on failure
//	passthrough never cached (non-GET, other origins)
//
// Partitions are bounded by entry count. After every write into a bounded
// partition the oldest insertions are deleted until the count equals the
// limit. Cache-store failures are logged and never fail the request.
//
// ResponseCache is the separate "cache_<url>" record cache used by the
// directly-called fetch wrapper; its records carry an expiry.
package cache
