package cache

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/feedsync/internal/store"
)

// Source records where a response came from.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Response is a fully buffered HTTP response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Source   Source
	StoredAt time.Time
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

func (r *Response) failed() bool {
	return r == nil || r.Status >= 500
}

func fromEntry(e *store.Entry) *Response {
	return &Response{
		Status:   e.Status,
		Header:   http.Header(e.Header).Clone(),
		Body:     e.Body,
		Source:   SourceCache,
		StoredAt: e.StoredAt,
	}
}

// OfflineAPIBody is the payload of the synthesized 503 for API requests.
const OfflineAPIBody = `{"error":"Offline","message":"This content is not available offline"}`

func offlineAPI() *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(OfflineAPIBody),
		Source: SourceFallback,
	}
}

func offlineText() *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte("Offline"),
		Source: SourceFallback,
	}
}

const offlineHTML = `<!doctype html><html><head><meta charset="utf-8"><title>Offline</title></head>` +
	`<body><h1>You are offline</h1><p>Reconnect to keep browsing.</p></body></html>`

func offlinePage() *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:   []byte(offlineHTML),
		Source: SourceFallback,
	}
}

func mediaPlaceholder() *Response {
	return &Response{
		Status: http.StatusNotFound,
		Header: http.Header{},
		Body:   []byte{},
		Source: SourceFallback,
	}
}

// RequestKey is the cache key of u: the NFC-normalized path plus the query
// with its parameters sorted. Scheme, host and fragment are dropped since
// only same-origin requests are cached.
func RequestKey(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	key := p
	if u.RawQuery != "" {
		if q, err := url.ParseQuery(u.RawQuery); err == nil {
			key += "?" + q.Encode()
		} else {
			key += "?" + u.RawQuery
		}
	}
	return norm.NFC.String(strings.TrimSpace(key))
}
