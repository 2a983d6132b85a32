package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huangang/copilot-metrics/internal/config"
)

const sampleFeed = `[{"date":"2024-01-02","total_active_users":5,"copilot_ide_code_completions":{"editors":[{"models":[{"languages":[{"name":"python","total_code_lines_suggested":100,"total_code_lines_accepted":40}]}]}]}}]`

func newTestProxy(t *testing.T, baseURL string, timeout time.Duration) (*MetricsProxy, *CredentialStore) {
	t.Helper()
	store := NewCredentialStore()
	if err := store.Set("ghp_test", "acme"); err != nil {
		t.Fatal(err)
	}
	proxy := NewMetricsProxy(store, &config.GitHubConfig{
		APIBaseURL: baseURL,
		APIVersion: "2022-11-28",
		Timeout:    timeout,
	}, nil)
	return proxy, store
}

func TestMetricsProxy_Success(t *testing.T) {
	var gotReq *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	proxy, _ := newTestProxy(t, server.URL+"/", time.Second)

	raw, err := proxy.FetchRaw(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("FetchRaw() error = %v", err)
	}
	if string(raw) != sampleFeed {
		t.Errorf("body = %s, expected verbatim upstream body", raw)
	}

	if gotReq.URL.Path != "/orgs/acme/copilot/metrics" {
		t.Errorf("path = %q, expected /orgs/acme/copilot/metrics", gotReq.URL.Path)
	}
	if got := gotReq.Header.Get("Authorization"); got != "Bearer ghp_test" {
		t.Errorf("Authorization = %q", got)
	}
	if got := gotReq.Header.Get("Accept"); got != "application/vnd.github.v3+json" {
		t.Errorf("Accept = %q", got)
	}
	if got := gotReq.Header.Get("X-GitHub-Api-Version"); got != "2022-11-28" {
		t.Errorf("X-GitHub-Api-Version = %q", got)
	}
	if gotReq.URL.RawQuery != "" {
		t.Errorf("unexpected query %q", gotReq.URL.RawQuery)
	}
}

func TestMetricsProxy_FetchMetricsDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	proxy, _ := newTestProxy(t, server.URL, time.Second)

	records, err := proxy.FetchMetrics(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("FetchMetrics() error = %v", err)
	}
	if len(records) != 1 || records[0].Date != "2024-01-02" {
		t.Errorf("unexpected records %+v", records)
	}
}

func TestMetricsProxy_DateRangeQuery(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	proxy, _ := newTestProxy(t, server.URL, time.Second)

	_, err := proxy.FetchRaw(context.Background(), FetchOptions{Since: "2024-01-01", Until: "2024-01-31"})
	if err != nil {
		t.Fatalf("FetchRaw() error = %v", err)
	}
	if query != "since=2024-01-01&until=2024-01-31" {
		t.Errorf("query = %q", query)
	}
}

func TestMetricsProxy_NotConfigured(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	proxy := NewMetricsProxy(NewCredentialStore(), &config.GitHubConfig{APIBaseURL: server.URL}, nil)

	_, err := proxy.FetchRaw(context.Background(), FetchOptions{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, expected ErrNotConfigured", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("expected no upstream call, got %d", n)
	}
}

func TestMetricsProxy_InvalidOptions(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	proxy, _ := newTestProxy(t, server.URL, time.Second)

	tests := []FetchOptions{
		{Since: "yesterday"},
		{Until: "2024-13-01"},
		{Since: "2024-02-01", Until: "2024-01-01"},
	}
	for _, opts := range tests {
		if _, err := proxy.FetchRaw(context.Background(), opts); !errors.Is(err, ErrInvalidFetchOptions) {
			t.Errorf("FetchRaw(%+v) error = %v, expected ErrInvalidFetchOptions", opts, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("expected no upstream call, got %d", n)
	}
}

func TestMetricsProxy_UpstreamErrorPassthrough(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"forbidden", http.StatusForbidden, `{"message":"Resource not accessible by integration"}`},
		{"not found", http.StatusNotFound, `{"message":"Not Found"}`},
		{"unprocessable", http.StatusUnprocessableEntity, `{"message":"Copilot Usage Metrics API setting is disabled"}`},
		{"server error", http.StatusInternalServerError, `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			proxy, _ := newTestProxy(t, server.URL, time.Second)

			_, err := proxy.FetchRaw(context.Background(), FetchOptions{})
			var upstreamErr *UpstreamError
			if !errors.As(err, &upstreamErr) {
				t.Fatalf("error = %v, expected *UpstreamError", err)
			}
			if upstreamErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, expected %d", upstreamErr.StatusCode, tt.status)
			}
			if string(upstreamErr.Body) != tt.body {
				t.Errorf("Body = %q, expected %q", upstreamErr.Body, tt.body)
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Errorf("expected exactly one upstream call, got %d", n)
			}
		})
	}
}

func TestMetricsProxy_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	proxy, _ := newTestProxy(t, server.URL, 50*time.Millisecond)

	start := time.Now()
	_, err := proxy.FetchRaw(context.Background(), FetchOptions{})
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Errorf("error = %v, expected ErrUpstreamTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, expected the request to be cancelled", elapsed)
	}
}

func TestMetricsProxy_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	proxy, _ := newTestProxy(t, baseURL, time.Second)

	_, err := proxy.FetchRaw(context.Background(), FetchOptions{})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %v, expected *NetworkError", err)
	}
	if errors.Is(err, ErrUpstreamTimeout) {
		t.Error("connection failure should not be classified as timeout")
	}
}

func TestMetricsProxy_CallerCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	proxy, _ := newTestProxy(t, server.URL, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := proxy.FetchRaw(ctx, FetchOptions{})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("error = %v, expected *NetworkError", err)
	}
}

func TestMetricsProxy_InvalidBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	proxy, _ := newTestProxy(t, server.URL, time.Second)

	_, err := proxy.FetchRaw(context.Background(), FetchOptions{})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("error = %v, expected *NetworkError", err)
	}
}

func TestMetricsProxy_EscapesOrg(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	proxy, store := newTestProxy(t, server.URL, time.Second)
	_ = store.Set("ghp_test", "acme/../admin")

	if _, err := proxy.FetchRaw(context.Background(), FetchOptions{}); err != nil {
		t.Fatalf("FetchRaw() error = %v", err)
	}
	if path != "/orgs/acme%2F..%2Fadmin/copilot/metrics" {
		t.Errorf("escaped path = %q", path)
	}
}

func TestNewMetricsProxy_DefaultTimeout(t *testing.T) {
	proxy := NewMetricsProxy(NewCredentialStore(), &config.GitHubConfig{}, nil)
	if proxy.timeout != DefaultUpstreamTimeout {
		t.Errorf("timeout = %v, expected %v", proxy.timeout, DefaultUpstreamTimeout)
	}
}
