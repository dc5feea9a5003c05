package cache

import (
	"net/http"
	"path"
	"strings"
)

// Class selects the caching policy for a request.
type Class int

const (
	ClassPassthrough Class = iota
	ClassStatic
	ClassMedia
	ClassFeed
	ClassAPI
	ClassNavigation
)

func (c Class) String() string {
	switch c {
	case ClassPassthrough:
		return "passthrough"
	case ClassStatic:
		return "static"
	case ClassMedia:
		return "media"
	case ClassFeed:
		return "feed"
	case ClassAPI:
		return "api"
	case ClassNavigation:
		return "navigation"
	default:
		return "unknown"
	}
}

var staticExtensions = map[string]bool{
	".js": true, ".css": true, ".woff": true, ".woff2": true, ".ico": true, ".webmanifest": true,
}

var mediaExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".avif": true,
}

// DefaultShellFiles is the app shell precached by Install.
var DefaultShellFiles = []string{"/", "/index.html", "/manifest.json", "/offline.html"}

// Classify picks the policy for req.
func (c *Intermediary) Classify(req *http.Request) Class {
	if req.Method != "" && req.Method != http.MethodGet {
		return ClassPassthrough
	}
	u := req.URL
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return ClassPassthrough
	}
	if c.origin != "" && u.Host != "" && u.Scheme+"://"+u.Host != c.origin {
		return ClassPassthrough
	}

	if req.Header.Get("Sec-Fetch-Dest") == "image" {
		return ClassMedia
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if strings.HasPrefix(p, "/api/") {
		if strings.Contains(p, "/posts") || strings.Contains(p, "/feed") {
			return ClassFeed
		}
		return ClassAPI
	}
	if c.shell[p] {
		return ClassStatic
	}

	ext := strings.ToLower(path.Ext(p))
	if staticExtensions[ext] || strings.HasPrefix(p, "/icons/") {
		return ClassStatic
	}
	if mediaExtensions[ext] {
		return ClassMedia
	}
	return ClassNavigation
}
