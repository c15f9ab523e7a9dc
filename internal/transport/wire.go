// Package transport implements the remote parameter service contract over
// HTTP/JSON, with a WebSocket stream for change notifications.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reconfigure-gui/internal/params"
)

const tracerName = "reconfigure-gui/transport"

// Routes served by nodes and the registry.
const (
	PathNodes       = "/nodes"
	PathHealth      = "/healthz"
	PathDescription = "/description"
	PathConfig      = "/config"
	PathWatch       = "/watch"
)

// MessageConfig is the type of a pushed configuration frame.
const MessageConfig = "config"

// NodeInfo is one registry entry.
type NodeInfo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// NodeList is the registry listing.
type NodeList struct {
	Nodes []NodeInfo `json:"nodes"`
}

// Health identifies a running node instance. Instance changes when the node
// restarts.
type Health struct {
	Node     string `json:"node"`
	Instance string `json:"instance"`
}

// ConfigMessage carries a configuration, in responses and pushed frames.
type ConfigMessage struct {
	Type     string        `json:"type,omitempty"`
	Instance string        `json:"instance,omitempty"`
	Values   params.Config `json:"values"`
}

// UpdateRequest is the body of a configuration update.
type UpdateRequest struct {
	Values params.Config `json:"values"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// getJSON issues a GET and decodes a JSON response into out.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return doJSON(client, req, out)
}

// postJSON issues a POST with a JSON body and decodes the response into out.
func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", req.Method, req.URL.Path, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// websocketURL turns an http(s) base URL into the ws(s) URL of path.
func websocketURL(base, path string) (string, error) {
	switch {
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(joinURL(base, path), "http://"), nil
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(joinURL(base, path), "https://"), nil
	default:
		return "", errors.New("node URL must be http or https: " + base)
	}
}
