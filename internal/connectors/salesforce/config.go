package salesforce

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// Config holds connection settings for one org.
type Config struct {
	// InstanceURL is the org's base URL, e.g. https://acme.my.salesforce.com.
	InstanceURL string

	// AccessToken is the OAuth bearer token.
	AccessToken string

	// APIVersion is the REST API version, e.g. "v60.0".
	APIVersion string

	// RequestsPerSecond caps the request rate. Zero means unlimited.
	RequestsPerSecond float64

	// Timeout bounds metadata requests. Binary fetches are bounded by
	// their context instead.
	Timeout time.Duration

	// HTTPClient is the base client the OAuth transport wraps.
	// Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.AccessToken == "" {
		return fmt.Errorf("%w: salesforce access token is required", domain.ErrInvalidInput)
	}
	u, err := url.Parse(c.InstanceURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: salesforce instance URL %q is not an http(s) URL", domain.ErrInvalidInput, c.InstanceURL)
	}
	if !strings.HasPrefix(c.APIVersion, "v") {
		return fmt.Errorf("%w: salesforce API version %q must look like v60.0", domain.ErrInvalidInput, c.APIVersion)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must not be negative", domain.ErrInvalidInput)
	}
	return nil
}
