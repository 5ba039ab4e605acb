// Package gateway drives the lifecycle of one live channel: it binds the
// verified identity to a connection on join, forwards sends to the delivery
// coordinator and unregisters on close.
package gateway

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/errors"
	"dm-lab/runtime"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/ratelimit"
)

type State int

const (
	Connecting State = iota
	Joined
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Joined:
		return "joined"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	BufferSize        int
	OverflowPolicy    runtime.OverflowPolicy
	SendRatePerSecond int
}

// Gateway opens sessions sharing a registry and a coordinator.
type Gateway struct {
	log         *slog.Logger
	registry    contract.IRegistry
	coordinator contract.IDeliveryCoordinator
	config      Config
}

func NewGateway(log *slog.Logger, registry contract.IRegistry, coordinator contract.IDeliveryCoordinator, config Config) *Gateway {
	return &Gateway{log: log, registry: registry, coordinator: coordinator, config: config}
}

// Open starts a session for an authenticated identity, in the Connecting state.
func (g *Gateway) Open(identity domain.Identity) *Session {
	limiter := ratelimit.NewUnlimited()
	if g.config.SendRatePerSecond > 0 {
		limiter = ratelimit.New(g.config.SendRatePerSecond, ratelimit.WithoutSlack)
	}
	return &Session{
		log:         g.log.With("identity", identity),
		identity:    identity,
		registry:    g.registry,
		coordinator: g.coordinator,
		limiter:     limiter,
		config:      g.config,
		state:       Connecting,
	}
}

// Session is the state machine of one identity-connection pair.
// A Disconnected session is never reused, a reconnect opens a new one.
type Session struct {
	mu          sync.Mutex
	log         *slog.Logger
	identity    domain.Identity
	registry    contract.IRegistry
	coordinator contract.IDeliveryCoordinator
	limiter     ratelimit.Limiter
	config      Config
	state       State
	conn        *runtime.LiveConnection
}

func (s *Session) Identity() domain.Identity { return s.identity }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Join registers a new connection for the session identity.
// An empty claim means the verified identity, any other claim must match it.
func (s *Session) Join(claimed domain.Identity) (*runtime.LiveConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Joined:
		return nil, errors.ErrAlreadyJoined
	case Disconnected:
		return nil, errors.ErrSessionClosed
	}
	if claimed != "" && claimed != s.identity {
		return nil, fmt.Errorf("%w: cannot join as %s", errors.ErrForbidden, claimed)
	}

	s.conn = runtime.NewLiveConnection(s.log, s.identity, s.config.BufferSize, s.config.OverflowPolicy)
	s.registry.Register(s.identity, s.conn)
	s.state = Joined
	s.log.Info("Session joined", "connection", s.conn.ID())
	return s.conn, nil
}

// Send forwards a message from the session identity.
func (s *Session) Send(ctx context.Context, recipient domain.Identity, content string) (domain.Message, error) {
	switch s.State() {
	case Connecting:
		return domain.Message{}, errors.ErrNotJoined
	case Disconnected:
		return domain.Message{}, errors.ErrSessionClosed
	}

	s.limiter.Take()
	return s.coordinator.Send(ctx, domain.SendMessageCommand{
		Sender:    s.identity,
		Recipient: recipient,
		Content:   content,
	})
}

// Close is idempotent. Only the mapping owned by this session is removed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Disconnected {
		return
	}
	if s.state == Joined {
		removed := s.registry.Unregister(s.identity, s.conn)
		s.conn.Close()
		s.log.Info("Session disconnected", "connection", s.conn.ID(), "unregistered", removed)
	}
	s.state = Disconnected
}
