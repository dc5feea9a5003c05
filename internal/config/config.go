// Package config loads feedsync settings: built-in profile defaults,
// overlaid by a CUE profile file, overlaid by FEEDSYNC_* environment
// variables.
package config

import (
	"fmt"
	"time"
)

// Built-in profiles.
const (
	ProfileMobile  = "mobile"
	ProfileDesktop = "desktop"
)

// Duration is a time.Duration written as "2s", "24h" in files and env.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full runtime configuration.
type Config struct {
	Profile string `json:"profile"`
	DB      string `json:"db"`
	Driver  string `json:"driver"`

	// Token is the bearer credential. It is only read from the environment.
	Token string `json:"-"`

	API        API        `json:"api"`
	Cache      Cache      `json:"cache"`
	Queue      Queue      `json:"queue"`
	Views      Views      `json:"views"`
	Probe      Probe      `json:"probe"`
	Optimistic Optimistic `json:"optimistic"`
}

type API struct {
	BaseURL        string   `json:"base_url"`
	Timeout        Duration `json:"timeout"`
	MaxRetries     int      `json:"max_retries"`
	BreakerTrips   uint32   `json:"breaker_trips"`
	BreakerTimeout Duration `json:"breaker_timeout"`
}

type Cache struct {
	Namespace        string         `json:"namespace"`
	Version          string         `json:"version"`
	Origin           string         `json:"origin"`
	Limits           map[string]int `json:"limits"`
	Shell            []string       `json:"shell"`
	OfflinePage      string         `json:"offline_page"`
	CompactJSON      bool           `json:"compact_json"`
	ResponseTTL      Duration       `json:"response_ttl"`
	MaxRevalidations int64          `json:"max_revalidations"`
}

type Queue struct {
	MaxInFlight int `json:"max_in_flight"`
}

type Views struct {
	Dwell     Duration `json:"dwell"`
	Threshold float64  `json:"threshold"`
}

// Probe configures the connectivity prober. An empty URL disables it.
type Probe struct {
	URL      string   `json:"url"`
	Interval Duration `json:"interval"`
}

type Optimistic struct {
	CoalesceInFlight bool `json:"coalesce_in_flight"`
}

// Default returns the built-in settings of profile.
func Default(profile string) (Config, error) {
	cfg := Config{
		Profile: profile,
		DB:      "feedsync.db",
		Driver:  "sqlite3",
		API: API{
			BaseURL:        "http://localhost:3000/api",
			Timeout:        Duration(15 * time.Second),
			MaxRetries:     2,
			BreakerTrips:   5,
			BreakerTimeout: Duration(30 * time.Second),
		},
		Cache: Cache{
			Namespace:        "feedsync",
			Version:          "v1",
			Origin:           "http://localhost:3000",
			Shell:            []string{"/", "/index.html", "/manifest.json", "/offline.html"},
			OfflinePage:      "/offline.html",
			ResponseTTL:      Duration(24 * time.Hour),
			MaxRevalidations: 4,
		},
		Views: Views{
			Dwell:     Duration(2 * time.Second),
			Threshold: 0.5,
		},
		Probe: Probe{
			Interval: Duration(15 * time.Second),
		},
	}

	switch profile {
	case ProfileMobile:
		cfg.Cache.Limits = map[string]int{"dynamic": 30, "media": 50, "api": 20}
		cfg.Cache.CompactJSON = true
	case ProfileDesktop:
		cfg.Cache.Limits = map[string]int{}
	default:
		return Config{}, fmt.Errorf("unknown profile %q (want %s or %s)", profile, ProfileMobile, ProfileDesktop)
	}
	return cfg, nil
}
