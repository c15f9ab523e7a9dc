package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"reconfigure-gui/internal/params"
	"reconfigure-gui/internal/remote"
)

const (
	descriptionCacheSize = 64
	connectRetryInterval = 100 * time.Millisecond
)

// descriptionCache remembers group descriptions per node instance.
type descriptionCache struct {
	entries *lru.Cache[string, params.GroupDescription]
}

func newDescriptionCache(size int) (*descriptionCache, error) {
	entries, err := lru.New[string, params.GroupDescription](size)
	if err != nil {
		return nil, err
	}
	return &descriptionCache{entries: entries}, nil
}

func cacheKey(node, instance string) string {
	return node + "@" + instance
}

func (c *descriptionCache) get(node, instance string) (params.GroupDescription, bool) {
	if c == nil || instance == "" {
		return params.GroupDescription{}, false
	}
	return c.entries.Get(cacheKey(node, instance))
}

func (c *descriptionCache) add(node, instance string, desc params.GroupDescription) {
	if c == nil || instance == "" {
		return
	}
	c.entries.Add(cacheKey(node, instance), desc)
}

// Dialer is a remote.Dialer resolving nodes through a Registry.
type Dialer struct {
	registry *Registry
	http     *http.Client
	ws       *websocket.Dialer
	logger   *logrus.Logger
	cache    *descriptionCache
}

// NewDialer creates a dialer. httpClient may be nil.
func NewDialer(registry *Registry, httpClient *http.Client, logger *logrus.Logger) (*Dialer, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cache, err := newDescriptionCache(descriptionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("description cache: %w", err)
	}
	return &Dialer{
		registry: registry,
		http:     httpClient,
		ws: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
		logger: logger,
		cache:  cache,
	}, nil
}

// Connect waits up to timeout for node to be registered and answering, then
// returns a client with its change stream running.
func (d *Dialer) Connect(ctx context.Context, node string, timeout time.Duration) (_ remote.Client, err error) {
	if timeout <= 0 {
		timeout = remote.DefaultConnectTimeout
	}

	ctx, span := tracer().Start(ctx, "dialer.Connect", trace.WithAttributes(
		attribute.String("node", node),
		attribute.String("timeout", timeout.String()),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(connectRetryInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		baseURL, health, err := d.reach(ctx, node)
		if err == nil {
			client := newClient(node, baseURL, health.Instance, d.http, d.logger, d.cache)
			go client.watch(d.ws)

			d.logger.WithFields(logrus.Fields{
				"node":     node,
				"url":      baseURL,
				"instance": health.Instance,
			}).Info("Connected to node")
			return client, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s after %s: %v", remote.ErrConnectionTimeout, node, timeout, lastErr)
		case <-ticker.C:
		}
	}
}

func (d *Dialer) reach(ctx context.Context, node string) (string, Health, error) {
	baseURL, err := d.registry.Resolve(ctx, node)
	if err != nil {
		return "", Health{}, err
	}

	var health Health
	if err := getJSON(ctx, d.http, joinURL(baseURL, PathHealth), &health); err != nil {
		return "", Health{}, err
	}
	if health.Node != "" && health.Node != node {
		return "", Health{}, fmt.Errorf("%s answers as %s", baseURL, health.Node)
	}
	return baseURL, health, nil
}
