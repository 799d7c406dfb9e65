package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/logger"
)

const (
	// DefaultTimeout is the default timeout for metadata requests.
	DefaultTimeout = 60 * time.Second

	// MaxRetries is the maximum number of retries for transient query errors.
	MaxRetries = 3

	// RetryDelay is the initial delay between query retries.
	RetryDelay = time.Second

	// maxErrorBody bounds how much of a failed response is read.
	maxErrorBody = 64 << 10
)

// Client talks to one org's REST API.
type Client struct {
	http        *http.Client
	baseURL     string
	apiVersion  string
	timeout     time.Duration
	rateLimiter *RateLimiter
	sleep       func(context.Context, time.Duration) error
}

// NewClient creates a client authenticated with a static bearer token.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.AccessToken,
		TokenType:   "Bearer",
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		http:        oauth2.NewClient(ctx, ts),
		baseURL:     strings.TrimRight(cfg.InstanceURL, "/"),
		apiVersion:  cfg.APIVersion,
		timeout:     timeout,
		rateLimiter: NewRateLimiter(cfg.RequestsPerSecond),
		sleep:       sleepCtx,
	}, nil
}

// RateLimiter exposes the limiter for usage reporting.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// dataPath returns the versioned REST path for a resource.
func (c *Client) dataPath(resource string) string {
	return "/services/data/" + c.apiVersion + "/" + strings.TrimLeft(resource, "/")
}

// get sends a GET for path (absolute or relative to the instance) and
// returns the response when the status is 2xx. Otherwise the body is
// drained into an *APIError.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.baseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", domain.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: GET %s: %w", domain.ErrTransient, path, err)
	}
	c.rateLimiter.UpdateFromResponse(resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := newAPIError(resp.StatusCode, path, body)
	if apiErr.ErrorCode == CodeRequestLimitExceeded {
		c.rateLimiter.Pause(retryAfter(resp))
	}
	return nil, apiErr
}

// getJSON decodes a JSON response into out, retrying transient failures.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	delay := RetryDelay
	var err error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("salesforce: retrying %s after %v (attempt %d): %v", path, delay, attempt+1, err)
			if serr := c.sleep(ctx, delay); serr != nil {
				return serr
			}
			delay *= 2
		}

		err = c.getJSONOnce(ctx, path, out)
		if err == nil || !domain.IsRetryable(err) {
			return err
		}
	}
	return err
}

func (c *Client) getJSONOnce(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: reading %s: %w", domain.ErrTransient, path, ctx.Err())
		}
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// queryPage is one page of a SOQL result.
type queryPage[T any] struct {
	TotalSize      int    `json:"totalSize"`
	Done           bool   `json:"done"`
	NextRecordsURL string `json:"nextRecordsUrl"`
	Records        []T    `json:"records"`
}

// queryAll runs soql and follows nextRecordsUrl until done.
func queryAll[T any](ctx context.Context, c *Client, soql string) ([]T, error) {
	path := c.dataPath("query") + "?q=" + url.QueryEscape(soql)

	var out []T
	for page := 1; ; page++ {
		var p queryPage[T]
		if err := c.getJSON(ctx, path, &p); err != nil {
			return nil, fmt.Errorf("query page %d: %w", page, err)
		}
		out = append(out, p.Records...)

		if p.Done {
			logger.Debug("salesforce: query returned %d of %d rows in %d page(s)", len(out), p.TotalSize, page)
			return out, nil
		}
		if p.NextRecordsURL == "" {
			return nil, fmt.Errorf("%w: query page %d not done but has no next page", domain.ErrTransient, page)
		}
		path = p.NextRecordsURL
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
