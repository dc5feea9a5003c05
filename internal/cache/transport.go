package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// SourceHeader carries the Response.Source of a round trip.
const SourceHeader = "X-Feedsync-Source"

// Transport is an http.RoundTripper that routes requests through an
// Intermediary. The intermediary's Fetcher must not use this transport.
type Transport struct {
	Cache *Intermediary
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Cache.Fetch(req.Context(), req)
	if err != nil {
		return nil, err
	}
	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(SourceHeader, string(resp.Source))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.Status, http.StatusText(resp.Status)),
		StatusCode:    resp.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}, nil
}
