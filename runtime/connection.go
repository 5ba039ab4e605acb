package runtime

import (
	"dm-lab/domain"
	"dm-lab/errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type OverflowPolicy string

const (
	// OverflowDisconnect closes a connection whose outbox is full.
	OverflowDisconnect OverflowPolicy = "disconnect"
	// OverflowDrop discards the message and keeps the connection.
	OverflowDrop OverflowPolicy = "drop"
)

func ParseOverflowPolicy(value string) (OverflowPolicy, error) {
	switch OverflowPolicy(value) {
	case OverflowDisconnect, OverflowDrop:
		return OverflowPolicy(value), nil
	default:
		return "", fmt.Errorf("%w: unknown overflow policy %q", errors.ErrInvalidRequest, value)
	}
}

// LiveConnection is the push side of one live channel.
// Push never blocks: messages are queued in a bounded outbox drained by the
// transport writer, which also watches Done to stop.
type LiveConnection struct {
	id          string
	identity    domain.Identity
	connectedAt time.Time
	policy      OverflowPolicy
	log         *slog.Logger

	outbox     chan domain.Message
	done       chan struct{}
	closeOnce  sync.Once
	overflowed atomic.Bool
	dropped    atomic.Uint64
}

func NewLiveConnection(log *slog.Logger, identity domain.Identity, bufferSize int, policy OverflowPolicy) *LiveConnection {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &LiveConnection{
		id:          uuid.NewString(),
		identity:    identity,
		connectedAt: time.Now().UTC(),
		policy:      policy,
		log:         log,
		outbox:      make(chan domain.Message, bufferSize),
		done:        make(chan struct{}),
	}
}

func (c *LiveConnection) ID() string                { return c.id }
func (c *LiveConnection) Identity() domain.Identity { return c.identity }

func (c *LiveConnection) Presence() domain.Presence {
	return domain.Presence{Identity: c.identity, ConnectionID: c.id, ConnectedAt: c.connectedAt}
}

// Push queues message for the writer.
// It returns ErrConnectionClosed once the connection is closed and
// ErrSlowConsumer when the outbox is full.
func (c *LiveConnection) Push(message domain.Message) error {
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	case c.outbox <- message:
		// A Close racing the enqueue wins, nobody drains the outbox after it.
		select {
		case <-c.done:
			return errors.ErrConnectionClosed
		default:
			return nil
		}
	default:
	}

	if c.policy == OverflowDrop {
		dropped := c.dropped.Add(1)
		c.log.Warn("Outbox full, message dropped", "connection", c.id, "message", message.ID, "dropped", dropped)
		return errors.ErrSlowConsumer
	}

	c.log.Warn("Outbox full, disconnecting slow consumer", "connection", c.id)
	c.overflowed.Store(true)
	c.Close()
	return errors.ErrSlowConsumer
}

// Outbox is never closed, readers select on Done as well.
func (c *LiveConnection) Outbox() <-chan domain.Message { return c.outbox }

func (c *LiveConnection) Done() <-chan struct{} { return c.done }

func (c *LiveConnection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Overflowed reports whether the connection was closed by the disconnect policy.
func (c *LiveConnection) Overflowed() bool { return c.overflowed.Load() }

func (c *LiveConnection) Dropped() uint64 { return c.dropped.Load() }
