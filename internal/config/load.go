package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/bytedance/sonic"
	"github.com/caarlos0/env/v11"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FEEDSYNC_"

// Error codes of LoadError.
const (
	ErrCodeRead   = "C001" // profile file unreadable
	ErrCodeParse  = "C002" // profile file is not valid CUE
	ErrCodeSchema = "C003" // profile file violates the schema
	ErrCodeEnv    = "C004" // environment override malformed
	ErrCodeValue  = "C005" // merged configuration invalid
)

// LoadError is a configuration error with its CUE position when known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type overrides struct {
	DB       string `env:"DB"`
	Driver   string `env:"DRIVER"`
	Profile  string `env:"PROFILE"`
	APIURL   string `env:"API_URL"`
	Token    string `env:"TOKEN"`
	ProbeURL string `env:"PROBE_URL"`
}

// Load builds the configuration from the profile file at path (optional)
// and the process environment.
func Load(path string) (Config, error) {
	return load(path, env.Options{Prefix: EnvPrefix})
}

// LoadWithEnv is Load with an explicit environment instead of the process one.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	return load(path, env.Options{Prefix: EnvPrefix, Environment: environ})
}

func load(path string, opts env.Options) (Config, error) {
	var over overrides
	if err := env.ParseWithOptions(&over, opts); err != nil {
		return Config{}, &LoadError{Code: ErrCodeEnv, Message: err.Error()}
	}

	var (
		file    cue.Value
		hasFile bool
	)
	if path != "" {
		v, err := compileProfile(path)
		if err != nil {
			return Config{}, err
		}
		file, hasFile = v, true
	}

	profile := ProfileMobile
	if hasFile {
		if p, err := file.LookupPath(cue.ParsePath("profile")).String(); err == nil {
			profile = p
		}
	}
	if over.Profile != "" {
		profile = over.Profile
	}

	cfg, err := Default(profile)
	if err != nil {
		return Config{}, &LoadError{Code: ErrCodeValue, Message: err.Error()}
	}
	if hasFile {
		data, err := file.MarshalJSON()
		if err != nil {
			return Config{}, &LoadError{Code: ErrCodeSchema, Message: err.Error()}
		}
		if err := sonic.Unmarshal(data, &cfg); err != nil {
			return Config{}, &LoadError{Code: ErrCodeSchema, Message: err.Error()}
		}
	}
	cfg.Profile = profile

	if over.DB != "" {
		cfg.DB = over.DB
	}
	if over.Driver != "" {
		cfg.Driver = over.Driver
	}
	if over.APIURL != "" {
		cfg.API.BaseURL = over.APIURL
	}
	if over.ProbeURL != "" {
		cfg.Probe.URL = over.ProbeURL
	}
	cfg.Token = over.Token

	if err := cfg.Validate(); err != nil {
		return Config{}, &LoadError{Code: ErrCodeValue, Message: err.Error()}
	}
	return cfg, nil
}

func compileProfile(path string) (cue.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeRead, Message: err.Error()}
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(path))
	if err := v.Err(); err != nil {
		return cue.Value{}, cueLoadError(ErrCodeParse, err)
	}

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile embedded schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, cueLoadError(ErrCodeSchema, err)
	}
	return unified, nil
}

func cueLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: cueerrors.Details(err, nil)}
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// Validate checks the merged configuration.
func (c Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db path is empty"))
	}
	if c.Driver != "sqlite3" && c.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("driver %q is not sqlite3 or sqlite", c.Driver))
	}
	if c.Views.Threshold <= 0 || c.Views.Threshold > 1 {
		errs = append(errs, fmt.Errorf("views.threshold %v is outside (0, 1]", c.Views.Threshold))
	}
	for name, n := range c.Cache.Limits {
		if n < 0 {
			errs = append(errs, fmt.Errorf("cache.limits.%s is negative", name))
		}
	}
	if c.Queue.MaxInFlight < 0 {
		errs = append(errs, errors.New("queue.max_in_flight is negative"))
	}
	return errors.Join(errs...)
}
