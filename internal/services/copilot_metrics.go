package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/huangang/copilot-metrics/internal/config"
	"github.com/huangang/copilot-metrics/internal/models"
	"github.com/huangang/copilot-metrics/internal/services/usage"
	"github.com/huangang/copilot-metrics/pkg/logger"
)

const (
	DefaultUpstreamTimeout = 5 * time.Second
	maxUpstreamBody        = 32 << 20
	dateLayout             = "2006-01-02"
)

var (
	// ErrNotConfigured means no credential has been submitted yet.
	ErrNotConfigured = errors.New("GitHub token or organization not configured")
	// ErrUpstreamTimeout means the upstream call exceeded the proxy timeout.
	ErrUpstreamTimeout = errors.New("request to GitHub API timed out")
	// ErrInvalidFetchOptions wraps malformed since/until values.
	ErrInvalidFetchOptions = errors.New("invalid date range")

	errInvalidUpstreamBody = errors.New("upstream returned a non-JSON body")
)

// UpstreamError is a non-2xx answer from the GitHub API. The body is kept
// as received so callers can inspect it.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("GitHub API returned HTTP %d", e.StatusCode)
}

// NetworkError is any failure to obtain a usable response that is not a
// timeout: DNS, refused or reset connections, cancelled callers, bad bodies.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "request to GitHub API failed: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FetchOptions narrows the requested date range. Empty fields are omitted.
type FetchOptions struct {
	Since string `form:"since"`
	Until string `form:"until"`
}

// Validate checks both bounds are YYYY-MM-DD and ordered.
func (o FetchOptions) Validate() error {
	var since, until time.Time
	var err error
	if o.Since != "" {
		if since, err = time.Parse(dateLayout, o.Since); err != nil {
			return fmt.Errorf("%w: since must be YYYY-MM-DD", ErrInvalidFetchOptions)
		}
	}
	if o.Until != "" {
		if until, err = time.Parse(dateLayout, o.Until); err != nil {
			return fmt.Errorf("%w: until must be YYYY-MM-DD", ErrInvalidFetchOptions)
		}
	}
	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return fmt.Errorf("%w: until is before since", ErrInvalidFetchOptions)
	}
	return nil
}

// MetricsProxy calls the Copilot metrics endpoint with the stored credential.
// It never retries, caches, or modifies the credential store.
type MetricsProxy struct {
	store      *CredentialStore
	httpClient *http.Client
	baseURL    string
	apiVersion string
	timeout    time.Duration
}

func NewMetricsProxy(store *CredentialStore, cfg *config.GitHubConfig, httpClient *http.Client) *MetricsProxy {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &MetricsProxy{
		store:      store,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		apiVersion: cfg.APIVersion,
		timeout:    timeout,
	}
}

// FetchRaw returns the upstream JSON body unchanged.
func (p *MetricsProxy) FetchRaw(ctx context.Context, opts FetchOptions) (json.RawMessage, error) {
	cred, ok := p.store.Current()
	if !ok {
		return nil, ErrNotConfigured
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.metricsURL(cred.Org, opts), nil)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("X-GitHub-Api-Version", p.apiVersion)
	req.Header.Set("User-Agent", "copilot-metrics")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, p.classify(ctx, cred.Org, start, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, p.classify(ctx, cred.Org, start, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn().
			Str("org", cred.Org).
			Int("status", resp.StatusCode).
			Dur("latency", time.Since(start)).
			Msg("[MetricsProxy] GitHub API returned an error")
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: body}
	}

	if !json.Valid(body) {
		logger.Error().
			Str("org", cred.Org).
			Int("size", len(body)).
			Msg("[MetricsProxy] GitHub API returned an unreadable body")
		return nil, &NetworkError{Err: errInvalidUpstreamBody}
	}

	logger.Debug().
		Str("org", cred.Org).
		Int("size", len(body)).
		Dur("latency", time.Since(start)).
		Msg("[MetricsProxy] Fetched Copilot metrics")
	return body, nil
}

// FetchMetrics fetches and decodes the feed. Decoding never fails; shapes
// the parser does not recognise contribute nothing.
func (p *MetricsProxy) FetchMetrics(ctx context.Context, opts FetchOptions) ([]models.CopilotDayMetrics, error) {
	raw, err := p.FetchRaw(ctx, opts)
	if err != nil {
		return nil, err
	}
	return usage.ParseFeed(raw), nil
}

func (p *MetricsProxy) metricsURL(org string, opts FetchOptions) string {
	u := p.baseURL + "/orgs/" + url.PathEscape(org) + "/copilot/metrics"
	query := url.Values{}
	if opts.Since != "" {
		query.Set("since", opts.Since)
	}
	if opts.Until != "" {
		query.Set("until", opts.Until)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (p *MetricsProxy) classify(ctx context.Context, org string, start time.Time, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn().
			Str("org", org).
			Dur("timeout", p.timeout).
			Msg("[MetricsProxy] GitHub API request timed out")
		return ErrUpstreamTimeout
	}
	logger.Error().
		Err(err).
		Str("org", org).
		Dur("latency", time.Since(start)).
		Msg("[MetricsProxy] GitHub API request failed")
	return &NetworkError{Err: err}
}
