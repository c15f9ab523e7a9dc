package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"reconfigure-gui/internal/remote"
)

// Registry is a remote.Discovery backed by the node registry.
type Registry struct {
	baseURL string
	http    *http.Client
}

// NewRegistry returns a registry client for baseURL.
func NewRegistry(baseURL string, client *http.Client) *Registry {
	if client == nil {
		client = http.DefaultClient
	}
	return &Registry{
		baseURL: baseURL,
		http:    client,
	}
}

// ListNodes returns the names of live nodes, sorted.
func (r *Registry) ListNodes(ctx context.Context) (names []string, err error) {
	ctx, span := tracer().Start(ctx, "registry.ListNodes")
	defer func() { endSpan(span, err) }()

	nodes, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	names = make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	sort.Strings(names)
	span.SetAttributes(attribute.Int("nodes", len(names)))
	return names, nil
}

// Resolve returns the base URL node is registered with. The listing is
// fetched on every call so a restarted node is found at its new address.
func (r *Registry) Resolve(ctx context.Context, node string) (baseURL string, err error) {
	ctx, span := tracer().Start(ctx, "registry.Resolve", trace.WithAttributes(attribute.String("node", node)))
	defer func() { endSpan(span, err) }()

	nodes, err := r.fetch(ctx)
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		if n.Name == node {
			return n.URL, nil
		}
	}
	return "", fmt.Errorf("node %s is not registered", node)
}

// Register adds or refreshes info in the registry.
func (r *Registry) Register(ctx context.Context, info NodeInfo) (err error) {
	ctx, span := tracer().Start(ctx, "registry.Register", trace.WithAttributes(attribute.String("node", info.Name)))
	defer func() { endSpan(span, err) }()

	return postJSON(ctx, r.http, joinURL(r.baseURL, PathNodes), info, nil)
}

// Unregister removes node from the registry.
func (r *Registry) Unregister(ctx context.Context, node string) (err error) {
	ctx, span := tracer().Start(ctx, "registry.Unregister", trace.WithAttributes(attribute.String("node", node)))
	defer func() { endSpan(span, err) }()

	target := joinURL(r.baseURL, PathNodes) + "?name=" + url.QueryEscape(node)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	return doJSON(r.http, req, nil)
}

func (r *Registry) fetch(ctx context.Context) ([]NodeInfo, error) {
	var list NodeList
	if err := getJSON(ctx, r.http, joinURL(r.baseURL, PathNodes), &list); err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrDiscoveryUnavailable, err)
	}
	return list.Nodes, nil
}
