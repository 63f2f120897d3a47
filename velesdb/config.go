package velesdb

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/birdie-ai/velesdb-go/xhttp"
)

// Config holds the connection settings of a [Client].
type Config struct {
	URL    string
	APIKey string
	// Timeout is the timeout of each request attempt, zero means no timeout.
	Timeout       time.Duration
	RetryMinSleep time.Duration
	RetryMaxSleep time.Duration
	// RetryMaxAttempts is how many attempts are made per request, zero or less retries until the context is done.
	RetryMaxAttempts int
}

// DefaultURL is the address of a VelesDB server running locally with default settings.
const DefaultURL = "http://localhost:8080"

// DefaultConfig returns the default [Config].
func DefaultConfig() Config {
	return Config{
		URL:              DefaultURL,
		RetryMinSleep:    xhttp.DefaultMinSleepPeriod,
		RetryMaxSleep:    xhttp.DefaultMaxSleepPeriod,
		RetryMaxAttempts: xhttp.DefaultMaxAttempts,
	}
}

// LoadConfig loads the [Config] from environment variables with the given prefix.
// A prefix "VELESDB" reads:
//
//   - VELESDB_URL: server base URL, defaults to [DefaultURL]
//   - VELESDB_API_KEY: API key, empty disables authentication
//   - VELESDB_TIMEOUT: per attempt timeout as a Go duration, like "30s"
//   - VELESDB_RETRY_MIN_SLEEP, VELESDB_RETRY_MAX_SLEEP: backoff bounds as Go durations
//   - VELESDB_RETRY_MAX_ATTEMPTS: attempts per request
//
// Absent variables keep the values of [DefaultConfig]. All invalid variables are reported.
func LoadConfig(prefix string) (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv(prefix + "_URL"); v != "" {
		cfg.URL = v
	}
	cfg.APIKey = os.Getenv(prefix + "_API_KEY")

	errs := []error{
		loadDuration(prefix+"_TIMEOUT", &cfg.Timeout),
		loadDuration(prefix+"_RETRY_MIN_SLEEP", &cfg.RetryMinSleep),
		loadDuration(prefix+"_RETRY_MAX_SLEEP", &cfg.RetryMaxSleep),
		loadInt(prefix+"_RETRY_MAX_ATTEMPTS", &cfg.RetryMaxAttempts),
	}
	if cfg.RetryMinSleep > cfg.RetryMaxSleep {
		errs = append(errs, fmt.Errorf("%s_RETRY_MIN_SLEEP %v is greater than %s_RETRY_MAX_SLEEP %v",
			prefix, cfg.RetryMinSleep, prefix, cfg.RetryMaxSleep))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TransportOptions returns the [HTTPTransport] options for the configuration.
func (c Config) TransportOptions() []TransportOption {
	opts := []TransportOption{
		WithRetrierOptions(
			xhttp.RetrierWithMinSleepPeriod(c.RetryMinSleep),
			xhttp.RetrierWithMaxSleepPeriod(c.RetryMaxSleep),
			xhttp.RetrierWithMaxAttempts(c.RetryMaxAttempts),
			xhttp.RetrierWithJitter(c.RetryMinSleep/2),
		),
	}
	if c.APIKey != "" {
		opts = append(opts, WithAPIKey(c.APIKey))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithRequestTimeout(c.Timeout))
	}
	return opts
}

// NewFromConfig creates a [Client] talking HTTP to the configured server.
func NewFromConfig(cfg Config, opts ...ClientOption) (*Client, error) {
	t, err := NewHTTPTransport(cfg.URL, cfg.TransportOptions()...)
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

func loadDuration(name string, d *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid %s %q: must not be negative", name, v)
	}
	*d = parsed
	return nil
}

func loadInt(name string, n *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*n = parsed
	return nil
}
