package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"reconfigure-gui/internal/params"
	"reconfigure-gui/internal/remote"
)

const (
	watchRetryDelay = time.Second
	watchPongWait   = 60 * time.Second
)

// Client is a remote.Client for one node.
type Client struct {
	node     string
	baseURL  string
	instance string
	http     *http.Client
	logger   *logrus.Logger
	cache    *descriptionCache

	mu   sync.RWMutex
	desc *params.GroupDescription

	notify    chan params.Config
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	watchDone chan struct{}
}

func newClient(node, baseURL, instance string, httpClient *http.Client, logger *logrus.Logger, cache *descriptionCache) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		node:      node,
		baseURL:   baseURL,
		instance:  instance,
		http:      httpClient,
		logger:    logger,
		cache:     cache,
		notify:    make(chan params.Config, 1),
		ctx:       ctx,
		cancel:    cancel,
		watchDone: make(chan struct{}),
	}
}

func (c *Client) Node() string { return c.node }

// GroupDescriptions returns the node's parameter descriptions. Results are
// cached per node instance.
func (c *Client) GroupDescriptions(ctx context.Context) (desc params.GroupDescription, err error) {
	ctx, span := c.startSpan(ctx, "client.GroupDescriptions")
	defer func() { endSpan(span, err) }()

	if cached, ok := c.cache.get(c.node, c.instance); ok {
		span.SetAttributes(attribute.Bool("cached", true))
		c.setDescription(cached)
		return cached, nil
	}

	if err := getJSON(ctx, c.http, joinURL(c.baseURL, PathDescription), &desc); err != nil {
		return desc, fmt.Errorf("%w: description of %s: %v", remote.ErrRemoteFetchFailed, c.node, err)
	}
	c.cache.add(c.node, c.instance, desc)
	c.setDescription(desc)
	return desc, nil
}

// Configuration fetches the node's full configuration.
func (c *Client) Configuration(ctx context.Context) (cfg params.Config, err error) {
	ctx, span := c.startSpan(ctx, "client.Configuration")
	defer func() { endSpan(span, err) }()

	var msg ConfigMessage
	if err := getJSON(ctx, c.http, joinURL(c.baseURL, PathConfig), &msg); err != nil {
		return nil, fmt.Errorf("%w: configuration of %s: %v", remote.ErrRemoteFetchFailed, c.node, err)
	}
	cfg, err = c.normalize(msg.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrRemoteFetchFailed, err)
	}
	return cfg, nil
}

// UpdateConfiguration sends delta and returns the configuration the node
// applied.
func (c *Client) UpdateConfiguration(ctx context.Context, delta params.Config) (applied params.Config, err error) {
	ctx, span := c.startSpan(ctx, "client.UpdateConfiguration")
	defer func() { endSpan(span, err) }()

	var msg ConfigMessage
	if err := postJSON(ctx, c.http, joinURL(c.baseURL, PathConfig), UpdateRequest{Values: delta}, &msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", remote.ErrRemoteUpdateFailed, c.node, err)
	}
	applied, err = c.normalize(msg.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrRemoteUpdateFailed, err)
	}
	return applied, nil
}

// Notifications delivers configurations pushed by the node. Only the most
// recent undelivered snapshot is kept.
func (c *Client) Notifications() <-chan params.Config {
	return c.notify
}

// Close stops the change stream and releases the client.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.watchDone
		close(c.notify)
		c.logger.WithField("node", c.node).Debug("Closed node client")
	})
	return nil
}

func (c *Client) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(
		attribute.String("node", c.node),
		attribute.String("instance", c.instance),
	))
}

func (c *Client) setDescription(desc params.GroupDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desc = &desc
}

// normalize coerces decoded JSON values against the descriptions once they
// are known.
func (c *Client) normalize(cfg params.Config) (params.Config, error) {
	c.mu.RLock()
	desc := c.desc
	c.mu.RUnlock()
	if desc == nil {
		return cfg, nil
	}
	return desc.Normalize(cfg)
}

// watch keeps a WebSocket subscription to the node's change stream open
// until the client is closed, redialling after failures.
func (c *Client) watch(dialer *websocket.Dialer) {
	defer close(c.watchDone)

	url, err := websocketURL(c.baseURL, PathWatch)
	if err != nil {
		c.logger.WithError(err).Warn("Change notifications disabled")
		return
	}

	for {
		if err := c.watchOnce(dialer, url); err != nil && c.ctx.Err() == nil {
			c.logger.WithField("node", c.node).WithError(err).Debug("Change stream interrupted")
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(watchRetryDelay):
		}
	}
}

func (c *Client) watchOnce(dialer *websocket.Dialer, url string) error {
	conn, _, err := dialer.DialContext(c.ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// unblock ReadJSON when the client closes
	stop := context.AfterFunc(c.ctx, func() { conn.Close() })
	defer stop()

	if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
		return err
	}
	conn.SetPingHandler(func(data string) error {
		if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
			return err
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		var msg ConfigMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
			return err
		}
		if msg.Type != MessageConfig {
			continue
		}
		if msg.Instance != "" && msg.Instance != c.instance {
			return fmt.Errorf("node %s restarted as %s", c.node, msg.Instance)
		}
		cfg, err := c.normalize(msg.Values)
		if err != nil {
			c.logger.WithError(err).Warn("Dropping malformed change notification")
			continue
		}
		c.push(cfg)
	}
}

// push delivers cfg, replacing an undelivered older snapshot.
func (c *Client) push(cfg params.Config) {
	for {
		select {
		case c.notify <- cfg:
			return
		default:
		}
		select {
		case <-c.notify:
		default:
		}
	}
}
