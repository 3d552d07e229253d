package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20 // 1 MiB cap on tool responses

// HTTPRequestTool fetches a URL and returns status, headers, and body.
// Covers the fast HTTP scraping path of the tool surface; interactive
// browsing belongs to the autonomous agent capability.
type HTTPRequestTool struct {
	client *http.Client
}

// NewHTTPRequestTool creates the http.request tool with a default client.
func NewHTTPRequestTool() *HTTPRequestTool {
	return &HTTPRequestTool{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *HTTPRequestTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "http.request",
		Description: "Perform an HTTP request and return the response body.",
		Params: []ParamSpec{
			{Name: "url", Type: "string", Required: true, Description: "URL to request"},
			{Name: "method", Type: "string", Description: "HTTP method, defaults to GET"},
			{Name: "headers", Type: "object", Description: "Request headers"},
			{Name: "body", Type: "string", Description: "Request body"},
		},
	}
}

func (t *HTTPRequestTool) Invoke(ctx context.Context, params map[string]any) (any, error) {
	url, _ := params["url"].(string)
	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if raw, ok := params["body"].(string); ok && raw != "" {
		body = strings.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, &ValidationError{Tool: "http.request", Message: err.Error()}
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &CapabilityError{Capability: "http.request", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &CapabilityError{Capability: "http.request", Err: err}
	}

	return map[string]any{
		"status":       resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"body":         string(data),
	}, nil
}

// JSONExtractTool pulls a value out of a JSON document by dot path,
// e.g. data="{"a":{"b":1}}", path="a.b".
type JSONExtractTool struct{}

func (t *JSONExtractTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "json.extract",
		Description: "Extract a field from a JSON document by dot path.",
		Params: []ParamSpec{
			{Name: "data", Type: "string", Required: true, Description: "JSON document"},
			{Name: "path", Type: "string", Required: true, Description: "Dot-separated field path"},
		},
	}
}

func (t *JSONExtractTool) Invoke(ctx context.Context, params map[string]any) (any, error) {
	raw, _ := params["data"].(string)
	path, _ := params["path"].(string)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &CapabilityError{Capability: "json.extract", Err: fmt.Errorf("parse document: %w", err)}
	}

	current := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, &CapabilityError{Capability: "json.extract", Err: fmt.Errorf("path %q not found", path)}
		}
		current, ok = obj[part]
		if !ok {
			return nil, &CapabilityError{Capability: "json.extract", Err: fmt.Errorf("path %q not found", path)}
		}
	}
	return current, nil
}

// RegisterBuiltins registers the tools every deployment ships with.
func RegisterBuiltins(r *ToolRegistry) {
	r.Register(NewHTTPRequestTool())
	r.Register(&JSONExtractTool{})
}
