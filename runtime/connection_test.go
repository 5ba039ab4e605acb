package runtime

import (
	"bytes"
	"dm-lab/domain"
	"dm-lab/errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLiveConnection_Push(t *testing.T) {
	t.Run("queues until the outbox is read", func(t *testing.T) {
		req := require.New(t)
		conn := NewLiveConnection(slog.Default(), "bob", 2, OverflowDisconnect)

		req.NoError(conn.Push(domain.Message{Content: "one"}))
		req.NoError(conn.Push(domain.Message{Content: "two"}))

		req.Equal("one", (<-conn.Outbox()).Content)
		req.Equal("two", (<-conn.Outbox()).Content)
	})

	t.Run("disconnects a slow consumer", func(t *testing.T) {
		req := require.New(t)
		conn := NewLiveConnection(slog.Default(), "bob", 1, OverflowDisconnect)

		// Given a full outbox
		req.NoError(conn.Push(domain.Message{Content: "one"}))

		// When another message is pushed
		err := conn.Push(domain.Message{Content: "two"})

		// Then the connection is closed
		req.ErrorIs(err, errors.ErrSlowConsumer)
		req.True(conn.Overflowed())
		<-conn.Done()
		req.ErrorIs(conn.Push(domain.Message{}), errors.ErrConnectionClosed)
	})

	t.Run("drops on overflow", func(t *testing.T) {
		req := require.New(t)
		conn := NewLiveConnection(slog.Default(), "bob", 1, OverflowDrop)

		req.NoError(conn.Push(domain.Message{Content: "one"}))
		req.ErrorIs(conn.Push(domain.Message{Content: "two"}), errors.ErrSlowConsumer)

		// Then the connection stays open
		req.False(conn.Overflowed())
		req.Equal(uint64(1), conn.Dropped())
		req.Equal("one", (<-conn.Outbox()).Content)
		req.NoError(conn.Push(domain.Message{Content: "three"}))
	})

	t.Run("close is idempotent", func(t *testing.T) {
		req := require.New(t)
		conn := NewLiveConnection(slog.Default(), "bob", 1, OverflowDrop)
		conn.Close()
		conn.Close()
		req.ErrorIs(conn.Push(domain.Message{}), errors.ErrConnectionClosed)
	})

	t.Run("a closed connection never accepts a message", func(t *testing.T) {
		req := require.New(t)
		conn := NewLiveConnection(slog.Default(), "bob", 1, OverflowDisconnect)

		// Given a connection closed while pushes are in flight
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = conn.Push(domain.Message{Content: "late"})
			}()
		}
		conn.Close()
		wg.Wait()
		for len(conn.Outbox()) > 0 {
			<-conn.Outbox()
		}

		// When a message is pushed after Close returned
		err := conn.Push(domain.Message{Content: "after"})

		// Then it is refused and the outbox stays empty
		req.ErrorIs(err, errors.ErrConnectionClosed)
		req.Empty(conn.Outbox())
	})

	t.Run("overflow warnings carry the session identity once", func(t *testing.T) {
		req := require.New(t)
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil)).With("identity", "bob")
		conn := NewLiveConnection(log, "bob", 1, OverflowDrop)

		// Given a full outbox
		req.NoError(conn.Push(domain.Message{Content: "one"}))

		// When a message is dropped
		req.ErrorIs(conn.Push(domain.Message{Content: "two"}), errors.ErrSlowConsumer)

		// Then the warning names the identity a single time
		req.Contains(buf.String(), "Outbox full, message dropped")
		req.Equal(1, strings.Count(buf.String(), "identity=bob"))
	})
}

func TestParseOverflowPolicy(t *testing.T) {
	req := require.New(t)

	policy, err := ParseOverflowPolicy("drop")
	req.NoError(err)
	req.Equal(OverflowDrop, policy)

	_, err = ParseOverflowPolicy("block")
	req.ErrorIs(err, errors.ErrInvalidRequest)
}
