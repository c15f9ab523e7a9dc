// Package remote defines the contract of the parameter service a node exposes
// and the discovery service that lists such nodes.
package remote

import (
	"context"
	"errors"
	"time"

	"reconfigure-gui/internal/params"
)

var (
	ErrDiscoveryUnavailable = errors.New("cannot reach node registry")
	ErrConnectionTimeout    = errors.New("timed out connecting to node")
	ErrRemoteUpdateFailed   = errors.New("remote update failed")
	ErrRemoteFetchFailed    = errors.New("remote fetch failed")
)

// DefaultConnectTimeout bounds a connection attempt when the caller has no
// better value.
const DefaultConnectTimeout = 5 * time.Second

// Discovery lists the nodes currently exposing a parameter service.
type Discovery interface {
	ListNodes(ctx context.Context) ([]string, error)
}

// Dialer opens a client to a node's parameter service.
type Dialer interface {
	Connect(ctx context.Context, node string, timeout time.Duration) (Client, error)
}

// Client talks to one node's parameter service.
type Client interface {
	Node() string
	GroupDescriptions(ctx context.Context) (params.GroupDescription, error)
	Configuration(ctx context.Context) (params.Config, error)
	UpdateConfiguration(ctx context.Context, delta params.Config) (params.Config, error)
	// Notifications delivers configurations pushed by the node. It may be nil
	// when the transport has no push channel.
	Notifications() <-chan params.Config
	Close() error
}
