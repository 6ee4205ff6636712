package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Environment variable names read by the loader.
const (
	EnvBaseURL    = "EPICOR_BASE_URL"
	EnvUsername   = "EPICOR_USERNAME"
	EnvPassword   = "EPICOR_PASSWORD"
	EnvHeadless   = "PLAYWRIGHT_HEADLESS"
	EnvSlowMoMS   = "PLAYWRIGHT_SLOW_MO_MS"
	EnvReuseState = "EPICOR_REUSE_STATE"
)

// DotEnvFile is read from the working directory when present.
const DotEnvFile = ".env"

// maxSlowMoMS is the largest slowdown that still fits in a time.Duration.
const maxSlowMoMS = math.MaxInt64 / int64(time.Millisecond)

// LookupFunc resolves a single environment value. It has the same contract
// as os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// RuntimeConfig holds the connection and runtime parameters for one run.
// It is built once and treated as read-only afterwards.
type RuntimeConfig struct {
	BaseURL    string
	Username   string
	Password   string
	Headless   bool
	SlowMo     time.Duration
	ReuseState bool
}

// String renders the config without the password.
func (c RuntimeConfig) String() string {
	return fmt.Sprintf("base_url=%s username=%s headless=%t slow_mo=%s reuse_state=%t",
		c.BaseURL, c.Username, c.Headless, c.SlowMo, c.ReuseState)
}

// Load resolves the runtime config from the process environment, falling back
// to values in a .env file in the working directory. The .env file is only
// read; the process environment is never modified.
func Load() (RuntimeConfig, error) {
	dotenv, err := godotenv.Read(DotEnvFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return RuntimeConfig{}, fmt.Errorf("failed to read %s: %w", DotEnvFile, err)
	}
	return LoadFrom(Chain(os.LookupEnv, MapLookup(dotenv)))
}

// LoadFrom builds a RuntimeConfig from the given lookup. Every missing required
// variable is reported in a single ConfigurationError.
func LoadFrom(lookup LookupFunc) (RuntimeConfig, error) {
	required := []string{EnvBaseURL, EnvUsername, EnvPassword}
	values := make(map[string]string, len(required))
	for _, name := range required {
		v, _ := lookup(name)
		values[name] = v
	}

	missing := lo.Filter(required, func(name string, _ int) bool {
		return values[name] == ""
	})
	if len(missing) > 0 {
		return RuntimeConfig{}, &ConfigurationError{Missing: missing}
	}

	baseURL := values[EnvBaseURL]
	if err := validateBaseURL(baseURL); err != nil {
		return RuntimeConfig{}, err
	}

	slowMoMS, err := IntFrom(lookup, EnvSlowMoMS, 0)
	if err != nil {
		return RuntimeConfig{}, err
	}
	if slowMoMS < 0 {
		raw, _ := lookup(EnvSlowMoMS)
		return RuntimeConfig{}, &ConfigurationError{
			Var:    EnvSlowMoMS,
			Value:  raw,
			Reason: "must not be negative",
		}
	}
	if int64(slowMoMS) > maxSlowMoMS {
		raw, _ := lookup(EnvSlowMoMS)
		return RuntimeConfig{}, &ConfigurationError{
			Var:    EnvSlowMoMS,
			Value:  raw,
			Reason: "is too large",
		}
	}

	return RuntimeConfig{
		BaseURL:    baseURL,
		Username:   values[EnvUsername],
		Password:   values[EnvPassword],
		Headless:   BoolFrom(lookup, EnvHeadless, true),
		SlowMo:     time.Duration(slowMoMS) * time.Millisecond,
		ReuseState: BoolFrom(lookup, EnvReuseState, true),
	}, nil
}

// IntFrom reads an integer option. An absent or blank value yields def.
func IntFrom(lookup LookupFunc, name string, def int) (int, error) {
	raw, ok := lookup(name)
	if !ok {
		return def, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigurationError{Var: name, Value: raw, Reason: "must be an integer"}
	}
	return n, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ConfigurationError{Var: EnvBaseURL, Value: raw, Reason: "must be an absolute http(s) URL"}
	}
	return nil
}

// MapLookup adapts a map to a LookupFunc.
func MapLookup(m map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// Chain returns a lookup that consults each source in order and returns the
// first hit.
func Chain(sources ...LookupFunc) LookupFunc {
	return func(name string) (string, bool) {
		for _, src := range sources {
			if v, ok := src(name); ok {
				return v, true
			}
		}
		return "", false
	}
}
