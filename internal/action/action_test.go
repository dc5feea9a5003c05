package action

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_TextRoundTrip(t *testing.T) {
	for _, k := range Kinds {
		text, err := k.MarshalText()
		require.NoError(t, err)

		var parsed Kind
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, k, parsed)
	}
}

func TestKind_Unknown(t *testing.T) {
	_, err := ParseKind("share")
	assert.Error(t, err)

	_, err = Kind(99).MarshalText()
	assert.Error(t, err)
	assert.False(t, Kind(0).Valid())
}

func TestKind_Idempotent(t *testing.T) {
	assert.True(t, KindLike.Idempotent())
	assert.True(t, KindView.Idempotent())
	assert.False(t, KindPost.Idempotent())
	assert.False(t, KindComment.Idempotent())
}

func TestNewID_Format(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewID(KindLike, now, RandomSuffix())
	assert.Regexp(t, regexp.MustCompile(`^like_1700000000123_[0-9a-f]{9}$`), id)
}

func TestRandomSuffix_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s := RandomSuffix()
		assert.False(t, seen[s], "duplicate suffix %s", s)
		seen[s] = true
	}
}

func TestQueued_JSONShape(t *testing.T) {
	q := NewQueued(KindBookmark, json.RawMessage(`{"postId":"p1"}`), "u1", time.UnixMilli(42), "abc")

	data, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"bookmark_42_abc","type":"bookmark","data":{"postId":"p1"},"timestamp":42,"userId":"u1"}`, string(data))

	in := q.Intent()
	assert.Equal(t, "bookmark_42_abc", in.Key)
	assert.Equal(t, KindBookmark, in.Kind)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		payload string
		wantErr bool
	}{
		{"like", KindLike, `{"postId":"p1","value":true}`, false},
		{"follow by username", KindFollow, `{"username":"ana"}`, false},
		{"view without target", KindView, `{}`, true},
		{"comment", KindComment, `{"postId":"p1","text":"hi"}`, false},
		{"comment without text", KindComment, `{"postId":"p1"}`, true},
		{"post", KindPost, `{"caption":"hello"}`, false},
		{"post invalid", KindPost, `{`, true},
		{"unknown kind", Kind(0), `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.kind, json.RawMessage(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEncodeTarget(t *testing.T) {
	raw, err := EncodeTarget(Target{PostID: "p1", Value: Bool(false)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"postId":"p1","value":false}`, string(raw))

	_, err = EncodeTarget(Target{})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
