// Package optimistic applies user gestures to local view state immediately
// and reconciles them with the server afterwards.
package optimistic

import (
	"sync"

	"github.com/roach88/feedsync/internal/action"
)

// ItemState is the locally displayed state of one post.
type ItemState struct {
	PostID     string `json:"postId"`
	Author     string `json:"author,omitempty"`
	Liked      bool   `json:"liked"`
	Likes      int    `json:"likes"`
	Bookmarked bool   `json:"bookmarked"`
	Bookmarks  int    `json:"bookmarks"`
	Reclipped  bool   `json:"reclipped"`
	Reclips    int    `json:"reclips"`
	Following  bool   `json:"following"`
}

// Board holds item state for every post on screen. Follow state is kept per
// author, so following from one post shows on all of that author's posts.
type Board struct {
	mu        sync.Mutex
	items     map[string]ItemState
	following map[string]bool
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		items:     make(map[string]ItemState),
		following: make(map[string]bool),
	}
}

// Seed sets the server-known state of a post.
func (b *Board) Seed(s ItemState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.Author != "" {
		b.following[s.Author] = s.Following
	}
	b.items[s.PostID] = s
}

// Get returns the displayed state of postID.
func (b *Board) Get(postID string) ItemState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getLocked(postID)
}

func (b *Board) getLocked(postID string) ItemState {
	s, ok := b.items[postID]
	if !ok {
		s = ItemState{PostID: postID}
	}
	if s.Author != "" {
		s.Following = b.following[s.Author]
	}
	return s
}

// flip toggles the flag of kind on postID, adjusting its counter. It
// returns the new flag value and the state before the change.
func (b *Board) flip(kind action.Kind, postID string) (bool, ItemState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.getLocked(postID)
	s := prev

	var next bool
	switch kind {
	case action.KindLike:
		s.Liked = !s.Liked
		s.Likes = bump(s.Likes, s.Liked)
		next = s.Liked
	case action.KindBookmark:
		s.Bookmarked = !s.Bookmarked
		s.Bookmarks = bump(s.Bookmarks, s.Bookmarked)
		next = s.Bookmarked
	case action.KindReclip:
		s.Reclipped = !s.Reclipped
		s.Reclips = bump(s.Reclips, s.Reclipped)
		next = s.Reclipped
	case action.KindFollow:
		s.Following = !s.Following
		if s.Author != "" {
			b.following[s.Author] = s.Following
		}
		next = s.Following
	}
	b.items[postID] = s
	return next, prev
}

// restore puts back the flag and counter of kind from prev. Fields of
// other kinds are left as they are now.
func (b *Board) restore(kind action.Kind, postID string, prev ItemState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.getLocked(postID)

	switch kind {
	case action.KindLike:
		s.Liked, s.Likes = prev.Liked, prev.Likes
	case action.KindBookmark:
		s.Bookmarked, s.Bookmarks = prev.Bookmarked, prev.Bookmarks
	case action.KindReclip:
		s.Reclipped, s.Reclips = prev.Reclipped, prev.Reclips
	case action.KindFollow:
		s.Following = prev.Following
		if s.Author != "" {
			b.following[s.Author] = prev.Following
		}
	}
	b.items[postID] = s
}

func bump(n int, on bool) int {
	if on {
		return n + 1
	}
	if n > 0 {
		return n - 1
	}
	return 0
}
