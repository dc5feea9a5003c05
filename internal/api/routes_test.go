package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/action"
)

func TestRouteFor(t *testing.T) {
	tests := []struct {
		name       string
		kind       action.Kind
		payload    string
		wantMethod string
		wantPath   string
	}{
		{"like", action.KindLike, `{"postId":"p1"}`, http.MethodPost, "/posts/p1/like"},
		{"unbookmark", action.KindBookmark, `{"postId":"p1","value":false}`, http.MethodDelete, "/posts/p1/bookmark"},
		{"reclip", action.KindReclip, `{"postId":"p 2","value":true}`, http.MethodPost, "/posts/p%202/reclip"},
		{"follow by user", action.KindFollow, `{"postId":"p1","username":"ana"}`, http.MethodPost, "/follows/ana"},
		{"follow by post", action.KindFollow, `{"postId":"p1"}`, http.MethodPost, "/posts/p1/follow"},
		{"view", action.KindView, `{"postId":"p1"}`, http.MethodPost, "/posts/p1/view"},
		{"post", action.KindPost, `{"caption":"x"}`, http.MethodPost, "/posts"},
		{"comment", action.KindComment, `{"postId":"p1","text":"x"}`, http.MethodPost, "/posts/p1/comments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := RouteFor(action.Intent{Kind: tt.kind, Payload: json.RawMessage(tt.payload)})
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, r.Method)
			assert.Equal(t, tt.wantPath, r.Path)
		})
	}
}

func TestRouteFor_CommentBody(t *testing.T) {
	r, err := RouteFor(action.Intent{Kind: action.KindComment, Payload: json.RawMessage(`{"postId":"p1","text":"hey"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hey"}`, string(r.Body))
}

func TestRouteFor_Invalid(t *testing.T) {
	_, err := RouteFor(action.Intent{Kind: action.Kind(42), Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)

	_, err = RouteFor(action.Intent{Kind: action.KindLike, Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)
}
