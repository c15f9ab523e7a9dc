// Package server implements a reconfigurable parameter node and the node
// registry the panel discovers nodes through.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"reconfigure-gui/internal/metrics"
	"reconfigure-gui/internal/params"
	"reconfigure-gui/internal/transport"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
	watchBuffer    = 16
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Node owns the authoritative configuration of one parameter group.
type Node struct {
	name     string
	instance string
	desc     params.GroupDescription
	logger   *logrus.Logger
	metrics  *metrics.Node
	gatherer prometheus.Gatherer

	mu       sync.RWMutex
	config   params.Config
	watchers map[chan transport.ConfigMessage]struct{}
}

// NewNode creates a node serving desc, starting from its defaults.
func NewNode(name string, desc params.GroupDescription, logger *logrus.Logger, reg *prometheus.Registry) (*Node, error) {
	cfg, err := desc.Defaults()
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", name, err)
	}

	n := &Node{
		name:     name,
		instance: uuid.NewString(),
		desc:     desc,
		logger:   logger,
		config:   cfg,
		watchers: make(map[chan transport.ConfigMessage]struct{}),
	}
	if reg != nil {
		n.metrics = metrics.NewNode(reg)
		n.gatherer = reg
	}
	return n, nil
}

func (n *Node) Name() string     { return n.name }
func (n *Node) Instance() string { return n.instance }

// Configuration returns a copy of the current configuration.
func (n *Node) Configuration() params.Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.config.Clone()
}

// Update validates delta, applies it and notifies watchers. Either every
// value of delta is applied or none is.
func (n *Node) Update(delta params.Config) (params.Config, error) {
	validated := make(params.Config, len(delta))
	for name, v := range delta {
		d, ok := n.desc.Lookup(name)
		if !ok || d.Type == params.Unknown {
			n.metrics.Update(metrics.ResultFailed)
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		nv, err := d.Validate(v)
		if err != nil {
			n.metrics.Update(metrics.ResultFailed)
			return nil, err
		}
		validated[name] = nv
	}

	n.mu.Lock()
	for name, v := range validated {
		n.config[name] = v
	}
	applied := n.config.Clone()
	n.broadcastLocked(applied)
	n.mu.Unlock()

	n.metrics.Update(metrics.ResultOK)
	n.logger.WithFields(logrus.Fields{
		"node":   n.name,
		"values": validated,
	}).Info("Configuration updated")
	return applied, nil
}

// broadcastLocked queues cfg for every watcher, dropping the oldest queued
// frame of slow watchers.
func (n *Node) broadcastLocked(cfg params.Config) {
	msg := transport.ConfigMessage{Type: transport.MessageConfig, Instance: n.instance, Values: cfg}
	for ch := range n.watchers {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- msg
		}
	}
}

func (n *Node) subscribe() chan transport.ConfigMessage {
	ch := make(chan transport.ConfigMessage, watchBuffer)
	n.mu.Lock()
	n.watchers[ch] = struct{}{}
	n.mu.Unlock()
	n.metrics.WatcherAdded()
	return ch
}

func (n *Node) unsubscribe(ch chan transport.ConfigMessage) {
	n.mu.Lock()
	delete(n.watchers, ch)
	n.mu.Unlock()
	n.metrics.WatcherRemoved()
}

// Handler returns the node's HTTP routes.
func (n *Node) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(transport.PathHealth, n.handleHealth)
	r.Get(transport.PathDescription, n.handleDescription)
	r.Get(transport.PathConfig, n.handleGetConfig)
	r.Post(transport.PathConfig, n.handleUpdateConfig)
	r.Get(transport.PathWatch, n.handleWatch)
	if n.gatherer != nil {
		r.Handle(metrics.Path, metrics.Handler(n.gatherer))
	}
	return r
}

func (n *Node) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, transport.Health{Node: n.name, Instance: n.instance})
}

func (n *Node) handleDescription(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, n.desc)
}

func (n *Node) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, transport.ConfigMessage{Instance: n.instance, Values: n.Configuration()})
}

func (n *Node) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req transport.UpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("values are required"))
		return
	}

	applied, err := n.Update(req.Values)
	if err != nil {
		n.logger.WithField("node", n.name).WithError(err).Warn("Rejected configuration update")
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.ConfigMessage{Instance: n.instance, Values: applied})
}

func (n *Node) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := n.subscribe()
	defer n.unsubscribe(ch)

	logger := n.logger.WithFields(logrus.Fields{"node": n.name, "remote": r.RemoteAddr})
	logger.Debug("Watcher connected")
	defer logger.Debug("Watcher disconnected")

	// the reader only services control frames and notices disconnects
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(watchPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(watchPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		case msg := <-ch:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, transport.ErrorResponse{Error: err.Error()})
}
