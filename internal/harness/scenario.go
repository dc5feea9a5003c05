package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/feedsync/internal/action"
	"github.com/roach88/feedsync/internal/cache"
	"github.com/roach88/feedsync/internal/config"
)

// Scenario is one offline-sync conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Profile selects the built-in configuration. Defaults to mobile.
	Profile string `yaml:"profile,omitempty"`

	// User is the signed-in user. Empty means anonymous.
	User string `yaml:"user,omitempty"`

	// Online is the connectivity at start.
	Online bool `yaml:"online"`

	Seed   []SeedItem `yaml:"seed,omitempty"`
	Server Server     `yaml:"server,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// SeedItem is the server-known state of a post before the first step.
type SeedItem struct {
	Post       string `yaml:"post"`
	Author     string `yaml:"author,omitempty"`
	Liked      bool   `yaml:"liked,omitempty"`
	Likes      int    `yaml:"likes,omitempty"`
	Bookmarked bool   `yaml:"bookmarked,omitempty"`
	Bookmarks  int    `yaml:"bookmarks,omitempty"`
	Reclipped  bool   `yaml:"reclipped,omitempty"`
	Reclips    int    `yaml:"reclips,omitempty"`
	Following  bool   `yaml:"following,omitempty"`
}

// Server scripts the fake backend.
type Server struct {
	// Fail lists "kind:target" keys the server rejects with a 500.
	Fail []string `yaml:"fail,omitempty"`

	// Routes answers fetches by path.
	Routes map[string]Route `yaml:"routes,omitempty"`
}

// Route is a canned network response.
type Route struct {
	Status      int    `yaml:"status"`
	ContentType string `yaml:"content_type,omitempty"`
	Body        string `yaml:"body,omitempty"`
}

// Step is one scenario action. Exactly one field must be set.
type Step struct {
	Connectivity string       `yaml:"connectivity,omitempty"` // "online" or "offline"
	Toggle       *ToggleStep  `yaml:"toggle,omitempty"`
	Post         *PostStep    `yaml:"post,omitempty"`
	Comment      *CommentStep `yaml:"comment,omitempty"`
	View         *ViewStep    `yaml:"view,omitempty"`
	Fetch        *FetchStep   `yaml:"fetch,omitempty"`
	Drain        bool         `yaml:"drain,omitempty"`
	Fail         []string     `yaml:"fail,omitempty"`
	Recover      bool         `yaml:"recover,omitempty"`
	Advance      string       `yaml:"advance,omitempty"`
}

// ToggleStep flips like, bookmark, reclip or follow on a post.
type ToggleStep struct {
	Kind string `yaml:"kind"`
	Post string `yaml:"post"`
}

// PostStep creates a post.
type PostStep struct {
	Body map[string]any `yaml:"body"`
}

// CommentStep comments on a post.
type CommentStep struct {
	Post string `yaml:"post"`
	Text string `yaml:"text"`
}

// ViewStep makes a post visible for Dwell (default: the configured dwell),
// or hides it after Dwell when Hide is set.
type ViewStep struct {
	Post  string `yaml:"post"`
	Dwell string `yaml:"dwell,omitempty"`
	Hide  bool   `yaml:"hide,omitempty"`
}

// FetchStep sends a GET through the cache intermediary.
type FetchStep struct {
	URL string `yaml:"url"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type selects the check:
	//   - "pending": queue length equals Count
	//   - "dispatched": server calls equal Actions, in order
	//   - "dispatched_count": Action was sent Count times
	//   - "signals": broadcast signal types equal Signals, in order
	//   - "item": post state matches Expect (subset)
	//   - "cache_entries": Partition holds Count entries
	//   - "trace_contains": an event with Op has a result matching Expect (subset)
	Type string `yaml:"type"`

	Count     int            `yaml:"count,omitempty"`
	Action    string         `yaml:"action,omitempty"`
	Actions   []string       `yaml:"actions,omitempty"`
	Signals   []string       `yaml:"signals,omitempty"`
	Post      string         `yaml:"post,omitempty"`
	Partition string         `yaml:"partition,omitempty"`
	Op        string         `yaml:"op,omitempty"`
	Expect    map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertPending         = "pending"
	AssertDispatched      = "dispatched"
	AssertDispatchedCount = "dispatched_count"
	AssertSignals         = "signals"
	AssertItem            = "item"
	AssertCacheEntries    = "cache_entries"
	AssertTraceContains   = "trace_contains"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Profile != "" && s.Profile != config.ProfileMobile && s.Profile != config.ProfileDesktop {
		return fmt.Errorf("unknown profile %q", s.Profile)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, item := range s.Seed {
		if item.Post == "" {
			return fmt.Errorf("seed[%d]: post is required", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	set := 0
	count := func(ok bool) {
		if ok {
			set++
		}
	}
	count(st.Connectivity != "")
	count(st.Toggle != nil)
	count(st.Post != nil)
	count(st.Comment != nil)
	count(st.View != nil)
	count(st.Fetch != nil)
	count(st.Drain)
	count(len(st.Fail) > 0)
	count(st.Recover)
	count(st.Advance != "")
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}

	switch {
	case st.Connectivity != "":
		if st.Connectivity != "online" && st.Connectivity != "offline" {
			return fmt.Errorf("steps[%d]: connectivity must be online or offline", index)
		}
	case st.Toggle != nil:
		kind, err := action.ParseKind(st.Toggle.Kind)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		switch kind {
		case action.KindLike, action.KindBookmark, action.KindReclip, action.KindFollow:
		default:
			return fmt.Errorf("steps[%d]: %s cannot be toggled", index, kind)
		}
		if st.Toggle.Post == "" {
			return fmt.Errorf("steps[%d]: toggle.post is required", index)
		}
	case st.Comment != nil:
		if st.Comment.Post == "" || st.Comment.Text == "" {
			return fmt.Errorf("steps[%d]: comment needs post and text", index)
		}
	case st.View != nil:
		if st.View.Post == "" {
			return fmt.Errorf("steps[%d]: view.post is required", index)
		}
		if st.View.Dwell != "" {
			if _, err := time.ParseDuration(st.View.Dwell); err != nil {
				return fmt.Errorf("steps[%d]: view.dwell: %w", index, err)
			}
		}
	case st.Fetch != nil:
		if st.Fetch.URL == "" {
			return fmt.Errorf("steps[%d]: fetch.url is required", index)
		}
	case st.Advance != "":
		if _, err := time.ParseDuration(st.Advance); err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertPending:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertDispatched:
		if a.Actions == nil {
			return fmt.Errorf("assertions[%d]: actions list is required for dispatched", index)
		}
	case AssertDispatchedCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for dispatched_count", index)
		}
	case AssertSignals:
		if a.Signals == nil {
			return fmt.Errorf("assertions[%d]: signals list is required", index)
		}
	case AssertItem:
		if a.Post == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: item needs post and expect", index)
		}
	case AssertCacheEntries:
		if _, err := cache.ParsePartition(a.Partition); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
