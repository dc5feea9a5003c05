package action

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Target is the payload of like, bookmark, follow, reclip and view.
//
// Value carries the desired end state ("liked=true") so that replaying the
// call is idempotent on the server. It is nil for views.
type Target struct {
	PostID   string `json:"postId"`
	Username string `json:"username,omitempty"`
	Value    *bool  `json:"value,omitempty"`
}

// CommentBody is the payload of a comment.
type CommentBody struct {
	PostID string `json:"postId"`
	Text   string `json:"text"`
}

// ErrEmptyPayload is returned when a payload is missing a required field.
var ErrEmptyPayload = errors.New("payload is missing a required field")

// EncodeTarget encodes a Target payload.
func EncodeTarget(t Target) (json.RawMessage, error) {
	if t.PostID == "" && t.Username == "" {
		return nil, ErrEmptyPayload
	}
	return json.Marshal(t)
}

// DecodeTarget decodes a Target payload and checks it names something.
func DecodeTarget(raw json.RawMessage) (Target, error) {
	var t Target
	if err := json.Unmarshal(raw, &t); err != nil {
		return Target{}, fmt.Errorf("decode target: %w", err)
	}
	if t.PostID == "" && t.Username == "" {
		return Target{}, fmt.Errorf("decode target: %w", ErrEmptyPayload)
	}
	return t, nil
}

// DecodeComment decodes a CommentBody payload.
func DecodeComment(raw json.RawMessage) (CommentBody, error) {
	var c CommentBody
	if err := json.Unmarshal(raw, &c); err != nil {
		return CommentBody{}, fmt.Errorf("decode comment: %w", err)
	}
	if c.PostID == "" || c.Text == "" {
		return CommentBody{}, fmt.Errorf("decode comment: %w", ErrEmptyPayload)
	}
	return c, nil
}

// Bool returns a pointer to b, for Target.Value.
func Bool(b bool) *bool {
	return &b
}

// Validate checks that payload is well formed for kind.
func Validate(kind Kind, payload json.RawMessage) error {
	switch kind {
	case KindLike, KindBookmark, KindFollow, KindReclip, KindView:
		_, err := DecodeTarget(payload)
		return err
	case KindComment:
		_, err := DecodeComment(payload)
		return err
	case KindPost:
		if !json.Valid(payload) {
			return fmt.Errorf("post payload is not valid JSON")
		}
		return nil
	default:
		return fmt.Errorf("unknown action kind %d", int(kind))
	}
}
