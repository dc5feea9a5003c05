package cache

import (
	"mime"
	"net/http"
	"regexp"

	"github.com/tdewolff/minify/v2"
	minjson "github.com/tdewolff/minify/v2/json"
)

var jsonMediaType = regexp.MustCompile(`[/+]json$`)

func newCompactor() *minify.M {
	m := minify.New()
	m.AddFuncRegexp(jsonMediaType, minjson.Minify)
	return m
}

// compact strips insignificant whitespace from JSON bodies before they are
// stored. Anything that is not JSON, or fails to minify, is stored as is.
func (c *Intermediary) compact(h http.Header, body []byte) []byte {
	if c.minifier == nil || len(body) == 0 {
		return body
	}
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil || !jsonMediaType.MatchString(mt) {
		return body
	}
	out, err := c.minifier.Bytes(mt, body)
	if err != nil {
		return body
	}
	return out
}
