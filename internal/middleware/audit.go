package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/copilot-metrics/internal/services"
	"github.com/huangang/copilot-metrics/pkg/logger"
	"github.com/tidwall/gjson"
)

const maxAuditBody = 2000

var sensitiveKeys = []string{"password", "api_key", "apikey", "secret", "token", "access_token"}

// AuditLog records write operations (POST/PUT/DELETE) to system_logs.
// Credential values in the request body are masked before they are stored.
func AuditLog(logs *services.SystemLogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodPost && method != http.MethodPut && method != http.MethodDelete {
			c.Next()
			return
		}

		var body map[string]any
		if c.Request.Body != nil {
			head, err := peekBody(c.Request)
			if err != nil {
				logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("[Audit] Failed to read request body")
			}
			body = maskSensitiveFields(head)
		}

		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)
		entry := services.LogEntry{
			Module:     module,
			Action:     action,
			Message:    formatAuditMessage(method, c.Request.URL.Path, status),
			StatusCode: status,
			RequestID:  c.GetString(logger.RequestIDKey),
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Extra: map[string]any{
				"method": method,
				"path":   c.Request.URL.Path,
				"body":   body,
				"audit":  true,
			},
		}
		if org, ok := body["org"].(string); ok {
			entry.Org = strings.TrimSpace(org)
		}

		if status >= 200 && status < 300 {
			logs.Info(entry)
		} else {
			logs.Warning(entry)
		}
	}
}

// peekBody reads at most maxAuditBody+1 bytes and puts them back in front of
// the unread remainder, so the handler still sees the whole body.
func peekBody(req *http.Request) ([]byte, error) {
	head, err := io.ReadAll(io.LimitReader(req.Body, maxAuditBody+1))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), req.Body), req.Body}
	return head, err
}

// parseRouteInfo extracts module and action from a gin route pattern,
// e.g. "/api/config" + "POST" gives module "config", action "update".
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")

	module = strings.SplitN(path, "/", 2)[0]
	if module == "" {
		module = "unknown"
	}
	module = strings.ReplaceAll(module, "-", "_")

	switch method {
	case http.MethodPost:
		action = "update"
	case http.MethodPut:
		action = "replace"
	case http.MethodDelete:
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return module, action
}

func formatAuditMessage(method, path string, status int) string {
	result := "Failed"
	if status >= 200 && status < 300 {
		result = "OK"
	}
	return "[Audit] " + method + " " + path + " -> " + result
}

// maskSensitiveFields returns the top-level fields of a JSON object body with
// sensitive values replaced. Non-object bodies yield nil.
func maskSensitiveFields(raw []byte) map[string]any {
	if len(raw) > maxAuditBody || !gjson.ValidBytes(raw) {
		return nil
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return nil
	}

	out := make(map[string]any)
	parsed.ForEach(func(key, value gjson.Result) bool {
		if isSensitiveKey(key.String()) {
			out[key.String()] = "***"
		} else {
			out[key.String()] = value.Value()
		}
		return true
	})
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
