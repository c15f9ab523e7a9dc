package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/metrics"
	"reconfigure-gui/internal/transport"
)

// DefaultTTL is how long a registration lives without a refresh.
const DefaultTTL = 3 * time.Second

type registration struct {
	url     string
	expires time.Time
}

// Registry tracks which nodes are alive and where they listen.
type Registry struct {
	ttl      time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Node
	gatherer prometheus.Gatherer
	now      func() time.Time

	mu    sync.Mutex
	nodes map[string]registration
}

// NewRegistry creates an empty registry. reg may be nil.
func NewRegistry(ttl time.Duration, logger *logrus.Logger, reg *prometheus.Registry) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		nodes:  make(map[string]registration),
	}
	if reg != nil {
		r.metrics = metrics.NewNode(reg)
		r.gatherer = reg
	}
	return r
}

// Register adds or refreshes a node.
func (r *Registry) Register(info transport.NodeInfo) error {
	if err := validateNodeInfo(info); err != nil {
		r.metrics.Registration(metrics.ResultFailed)
		return err
	}

	r.mu.Lock()
	_, known := r.nodes[info.Name]
	r.nodes[info.Name] = registration{url: info.URL, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()

	r.metrics.Registration(metrics.ResultOK)
	if !known {
		r.logger.WithFields(logrus.Fields{"node": info.Name, "url": info.URL}).Info("Node registered")
	}
	return nil
}

// Unregister removes a node. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	_, known := r.nodes[name]
	delete(r.nodes, name)
	r.mu.Unlock()

	if known {
		r.logger.WithField("node", name).Info("Node unregistered")
	}
}

// Nodes returns the live registrations sorted by name, dropping expired ones.
func (r *Registry) Nodes() []transport.NodeInfo {
	now := r.now()

	r.mu.Lock()
	out := make([]transport.NodeInfo, 0, len(r.nodes))
	for name, reg := range r.nodes {
		if now.After(reg.expires) {
			delete(r.nodes, name)
			r.logger.WithField("node", name).Info("Node registration expired")
			continue
		}
		out = append(out, transport.NodeInfo{Name: name, URL: reg.url})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	r.metrics.SetLiveNodes(len(out))
	return out
}

// Handler returns the registry's HTTP routes.
func (r *Registry) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get(transport.PathNodes, r.handleList)
	router.Post(transport.PathNodes, r.handleRegister)
	router.Delete(transport.PathNodes, r.handleUnregister)
	if r.gatherer != nil {
		router.Handle(metrics.Path, metrics.Handler(r.gatherer))
	}
	return router
}

func (r *Registry) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, transport.NodeList{Nodes: r.Nodes()})
}

func (r *Registry) handleRegister(w http.ResponseWriter, req *http.Request) {
	var info transport.NodeInfo
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16)).Decode(&info); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode registration: %w", err))
		return
	}
	if err := r.Register(info); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Node names contain slashes, so they travel as a query parameter.
func (r *Registry) handleUnregister(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimSpace(req.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	r.Unregister(name)
	w.WriteHeader(http.StatusNoContent)
}

func validateNodeInfo(info transport.NodeInfo) error {
	if !strings.HasPrefix(info.Name, "/") || len(info.Name) < 2 {
		return fmt.Errorf("node name %q must start with / and be non-empty", info.Name)
	}
	u, err := url.Parse(info.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("node URL %q must be an absolute http(s) URL", info.URL)
	}
	return nil
}

// Heartbeat registers info with the registry at registryURL every interval
// until ctx ends, then unregisters it.
func Heartbeat(ctx context.Context, client *http.Client, registryURL string, info transport.NodeInfo, interval time.Duration, logger *logrus.Logger) error {
	if interval <= 0 {
		interval = DefaultTTL / 3
	}
	registry := transport.NewRegistry(registryURL, client)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		err := registry.Register(ctx, info)
		switch {
		case err != nil && !failing && ctx.Err() == nil:
			failing = true
			logger.WithError(err).Warn("Registry unreachable, will keep retrying")
		case err == nil && failing:
			failing = false
			logger.Info("Registered with registry again")
		}

		select {
		case <-ctx.Done():
			unregisterCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := registry.Unregister(unregisterCtx, info.Name); err != nil {
				logger.WithError(err).Debug("Unregister failed")
			}
			cancel()
			return nil
		case <-ticker.C:
		}
	}
}
