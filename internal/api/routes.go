package api

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/roach88/feedsync/internal/action"
)

// Route is the HTTP shape of one intent.
type Route struct {
	Method string
	Path   string // relative to the API base URL
	Body   []byte // nil for bodiless calls
}

// RouteFor maps an intent to its endpoint. The switch is exhaustive over
// action.Kind; unknown kinds are an error rather than a silent no-op.
func RouteFor(in action.Intent) (Route, error) {
	switch in.Kind {
	case action.KindLike, action.KindBookmark, action.KindReclip:
		t, err := action.DecodeTarget(in.Payload)
		if err != nil {
			return Route{}, fmt.Errorf("route %s: %w", in.Kind, err)
		}
		return Route{
			Method: setMethod(t.Value),
			Path:   "/posts/" + url.PathEscape(t.PostID) + "/" + in.Kind.String(),
		}, nil

	case action.KindFollow:
		t, err := action.DecodeTarget(in.Payload)
		if err != nil {
			return Route{}, fmt.Errorf("route follow: %w", err)
		}
		if t.Username != "" {
			return Route{Method: setMethod(t.Value), Path: "/follows/" + url.PathEscape(t.Username)}, nil
		}
		return Route{Method: setMethod(t.Value), Path: "/posts/" + url.PathEscape(t.PostID) + "/follow"}, nil

	case action.KindView:
		t, err := action.DecodeTarget(in.Payload)
		if err != nil {
			return Route{}, fmt.Errorf("route view: %w", err)
		}
		return Route{Method: http.MethodPost, Path: "/posts/" + url.PathEscape(t.PostID) + "/view"}, nil

	case action.KindPost:
		if err := action.Validate(action.KindPost, in.Payload); err != nil {
			return Route{}, fmt.Errorf("route post: %w", err)
		}
		return Route{Method: http.MethodPost, Path: "/posts", Body: in.Payload}, nil

	case action.KindComment:
		c, err := action.DecodeComment(in.Payload)
		if err != nil {
			return Route{}, fmt.Errorf("route comment: %w", err)
		}
		body, err := encode(map[string]string{"text": c.Text})
		if err != nil {
			return Route{}, fmt.Errorf("route comment: %w", err)
		}
		return Route{Method: http.MethodPost, Path: "/posts/" + url.PathEscape(c.PostID) + "/comments", Body: body}, nil

	default:
		return Route{}, fmt.Errorf("route: unknown action kind %d", int(in.Kind))
	}
}

// setMethod maps a desired end state to a verb: POST sets, DELETE clears.
// A missing value means "set".
func setMethod(value *bool) string {
	if value != nil && !*value {
		return http.MethodDelete
	}
	return http.MethodPost
}
