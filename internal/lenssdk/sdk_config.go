package lenssdk

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// APIPrefix is appended to every resolved origin.
	APIPrefix = "/api/v1"

	DefaultDevHost = "localhost"
	DefaultDevPort = 7473

	DefaultTimeout = 10 * time.Second
)

// Config resolves where the backend lives. Resolution order is fixed:
// an explicit deploy-target URL wins, then an explicit API base URL, then
// the dev-server host/port fallback. DeployURL is a pointer so callers can
// set it to an empty string to explicitly disable the deploy target.
type Config struct {
	DeployURL  *string
	APIBaseURL string
	DevHost    string
	DevPort    int
	Timeout    time.Duration
}

func (c *Config) Validate() error {
	if c.DeployURL != nil && *c.DeployURL != "" {
		if err := validateAbsURL(*c.DeployURL); err != nil {
			return fmt.Errorf("%w: deploy url %q", ErrBadBaseURL, *c.DeployURL)
		}
	}
	if c.APIBaseURL != "" {
		if err := validateAbsURL(c.APIBaseURL); err != nil {
			return fmt.Errorf("%w: api url %q", ErrBadBaseURL, c.APIBaseURL)
		}
	}
	if c.DevPort < 0 || c.DevPort > 65535 {
		return fmt.Errorf("sdk: invalid dev port %d", c.DevPort)
	}
	return nil
}

// ResolveBaseURL returns the backend origin without the API prefix.
func (c *Config) ResolveBaseURL() string {
	if c.DeployURL != nil && *c.DeployURL != "" {
		return strings.TrimRight(*c.DeployURL, "/")
	}
	if c.APIBaseURL != "" {
		return strings.TrimRight(c.APIBaseURL, "/")
	}
	host := c.DevHost
	if host == "" {
		host = DefaultDevHost
	}
	port := c.DevPort
	if port == 0 {
		port = DefaultDevPort
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func validateAbsURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("not absolute: %s", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	return nil
}
