// Package feed keeps the last loaded pages of each feed tab per user, so a
// feed can be painted immediately on open, including while offline.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// KeyPrefix prefixes every snapshot key.
const KeyPrefix = "feed:"

// KV is the durable key/value surface snapshots are stored in.
type KV interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	PutJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Page is one page of feed items as the server returned them.
type Page []json.RawMessage

// Snapshot is the stored value of one feed tab.
type Snapshot struct {
	Pages   []Page `json:"pages"`
	SavedAt int64  `json:"savedAt"`
}

// Snapshots stores feed snapshots keyed "feed:<userId>:<tab>". Both parts
// are query-escaped, so neither can contain the separator.
type Snapshots struct {
	kv  KV
	now func() time.Time
}

// New creates a snapshot cache over kv.
func New(kv KV) *Snapshots {
	return &Snapshots{kv: kv, now: time.Now}
}

// Key returns the storage key of a user's tab.
func Key(userID, tab string) string {
	return userPrefix(userID) + url.QueryEscape(norm.NFC.String(tab))
}

func userPrefix(userID string) string {
	return KeyPrefix + url.QueryEscape(userID) + ":"
}

// Save replaces the snapshot of tab wholesale.
func (s *Snapshots) Save(ctx context.Context, userID, tab string, pages []Page) error {
	if pages == nil {
		pages = []Page{}
	}
	snap := Snapshot{Pages: pages, SavedAt: s.now().UnixMilli()}
	if err := s.kv.PutJSON(ctx, Key(userID, tab), snap); err != nil {
		return fmt.Errorf("save feed %s/%s: %w", userID, tab, err)
	}
	return nil
}

// Load returns the stored pages of tab, or an empty list when none are stored.
func (s *Snapshots) Load(ctx context.Context, userID, tab string) ([]Page, error) {
	var snap Snapshot
	found, err := s.kv.GetJSON(ctx, Key(userID, tab), &snap)
	if err != nil {
		return nil, fmt.Errorf("load feed %s/%s: %w", userID, tab, err)
	}
	if !found || snap.Pages == nil {
		return []Page{}, nil
	}
	return snap.Pages, nil
}

// Clear removes the snapshot of tab.
func (s *Snapshots) Clear(ctx context.Context, userID, tab string) error {
	if err := s.kv.Delete(ctx, Key(userID, tab)); err != nil {
		return fmt.Errorf("clear feed %s/%s: %w", userID, tab, err)
	}
	return nil
}

// Tabs lists the tabs with a stored snapshot for userID, sorted.
func (s *Snapshots) Tabs(ctx context.Context, userID string) ([]string, error) {
	prefix := userPrefix(userID)
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list feeds %s: %w", userID, err)
	}
	tabs := make([]string, 0, len(keys))
	for _, k := range keys {
		tab, err := url.QueryUnescape(strings.TrimPrefix(k, prefix))
		if err != nil {
			return nil, fmt.Errorf("list feeds %s: bad key %q: %w", userID, k, err)
		}
		tabs = append(tabs, tab)
	}
	sort.Strings(tabs)
	return tabs, nil
}
