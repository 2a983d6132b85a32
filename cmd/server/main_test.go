package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/copilot-metrics/internal/config"
	"gopkg.in/yaml.v3"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const feed = `[
 {"date":"2024-01-02","copilot_ide_code_completions":{"editors":[{"models":[{"languages":[
   {"name":"python","total_code_lines_suggested":100,"total_code_lines_accepted":40},
   {"name":"go","total_code_lines_suggested":50,"total_code_lines_accepted":10}]}]}]}},
 {"date":"2024-01-01","copilot_ide_code_completions":{"editors":[{"models":[{"languages":[
   {"name":"python","total_code_lines_suggested":0,"total_code_lines_accepted":0}]}]}]}}
]`

func TestRunAggregate(t *testing.T) {
	var out bytes.Buffer
	if err := runAggregate(strings.NewReader(feed), &out, false); err != nil {
		t.Fatalf("runAggregate() error = %v", err)
	}

	var summary struct {
		Daily []struct {
			Day            string  `json:"day"`
			AcceptanceRate float64 `json:"acceptance_rate"`
		} `json:"daily"`
		Languages []struct {
			Name  string `json:"name"`
			Value int64  `json:"value"`
		} `json:"languages"`
	}
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(summary.Daily) != 2 || summary.Daily[0].Day != "2024-01-01" {
		t.Errorf("daily = %+v, expected two days sorted ascending", summary.Daily)
	}
	if summary.Daily[0].AcceptanceRate != 0 {
		t.Errorf("zero-suggestion day rate = %v, expected 0", summary.Daily[0].AcceptanceRate)
	}
	if len(summary.Languages) != 2 || summary.Languages[0].Name != "python" || summary.Languages[0].Value != 40 {
		t.Errorf("languages = %+v", summary.Languages)
	}
}

func TestRunAggregate_GarbageInput(t *testing.T) {
	var out bytes.Buffer
	if err := runAggregate(strings.NewReader("not json"), &out, true); err != nil {
		t.Fatalf("runAggregate() error = %v", err)
	}
	if !strings.Contains(out.String(), `"daily": []`) {
		t.Errorf("expected empty pretty summary, got %s", out.String())
	}
}

func TestAggregateCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	if err := os.WriteFile(path, []byte(feed), 0o644); err != nil {
		t.Fatal(err)
	}

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"aggregate", "--file", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), `"acceptance_rate"`) {
		t.Errorf("unexpected output %s", out.String())
	}
}

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"init-config", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not YAML: %v", err)
	}
	if cfg.Server.Port != config.DefaultConfig().Server.Port {
		t.Errorf("port = %q", cfg.Server.Port)
	}

	root = newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"init-config", "--config", path})
	if err := root.Execute(); err == nil {
		t.Error("expected an error when the file exists without --force")
	}
}

func newTestServer(t *testing.T, upstream string) *gin.Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "none"
	cfg.GitHub.APIBaseURL = upstream
	cfg.RateLimit.RPS = 0

	svc, err := bootstrap(cfg)
	if err != nil {
		t.Fatalf("bootstrap() error = %v", err)
	}
	t.Cleanup(svc.shutdown)

	r := gin.New()
	registerRoutes(r, svc)
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestServer_EndToEnd(t *testing.T) {
	var auth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(feed))
	}))
	defer upstream.Close()

	r := newTestServer(t, upstream.URL)

	if w := serve(r, "GET", "/api/copilot-metrics", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("unconfigured fetch: expected 401, got %d", w.Code)
	}

	if w := serve(r, "POST", "/api/config", `{"token":"ghp_e2e","org":"acme"}`); w.Code != http.StatusOK {
		t.Fatalf("POST /api/config: expected 200, got %d", w.Code)
	}

	w := serve(r, "GET", "/api/copilot-metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("fetch: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != feed {
		t.Error("expected the upstream body verbatim")
	}
	if auth != "Bearer ghp_e2e" {
		t.Errorf("Authorization = %q", auth)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}

	if w := serve(r, "GET", "/api/copilot-metrics/summary", ""); w.Code != http.StatusOK {
		t.Errorf("summary: expected 200, got %d", w.Code)
	}
}

func TestServer_StaticFallback(t *testing.T) {
	r := newTestServer(t, "http://127.0.0.1:0")

	for _, target := range []string{"/", "/dashboard/languages"} {
		w := serve(r, "GET", target, "")
		if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
			t.Errorf("%s: status %d, content type %q", target, w.Code, w.Header().Get("Content-Type"))
		}
	}

	w := serve(r, "GET", "/api/unknown", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown api path: expected 404, got %d", w.Code)
	}
}
