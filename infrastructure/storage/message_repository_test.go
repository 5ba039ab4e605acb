package storage

import (
	"context"
	"dm-lab/domain"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Append_And_List_Conversation_In_Both_Orientations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), 3)

	// Given messages exchanged in both directions
	m1, err := repository.Append(ctx, "alice", "bob", "hi")
	req.NoError(err)
	m2, err := repository.Append(ctx, "bob", "alice", "hello")
	req.NoError(err)
	m3, err := repository.Append(ctx, "alice", "bob", "how are you?")
	req.NoError(err)

	// When listing the conversation from each side
	fromAlice, err := repository.ListConversation(ctx, "alice", "bob")
	req.NoError(err)
	fromBob, err := repository.ListConversation(ctx, "bob", "alice")
	req.NoError(err)

	// Then both replays are identical and ordered
	req.Equal([]domain.Message{m1, m2, m3}, fromAlice)
	req.Equal(fromAlice, fromBob)
	req.Equal(uint64(1), m1.Sequence)
	req.Equal(uint64(3), m3.Sequence)
	req.Equal("alice", m2.Recipient)
}

func Test_List_Empty_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), 3)

	messages, err := repository.ListConversation(context.Background(), "alice", "nobody")

	req.NoError(err)
	req.NotNil(messages)
	req.Empty(messages)
}

func Test_Conversations_Do_Not_Leak_Into_Each_Other(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), 3)

	// Given identities sharing a textual prefix
	_, err := repository.Append(ctx, "a", "b", "first")
	req.NoError(err)
	_, err = repository.Append(ctx, "a", "b:x", "second")
	req.NoError(err)

	// Then each conversation only holds its own message
	messages, err := repository.ListConversation(ctx, "a", "b")
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("first", messages[0].Content)
}

func Test_Timestamps_Never_Go_Backwards(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{at, at.Add(-time.Hour), at.Add(time.Second)}
	i := 0
	repository := NewMessageRepository(openDB(t), slog.Default(), 3).
		WithClock(func() time.Time {
			now := clock[i]
			i++
			return now
		})

	// Given the wall clock jumps back between two appends
	for _, content := range []string{"one", "two", "three"} {
		_, err := repository.Append(ctx, "alice", "bob", content)
		req.NoError(err)
	}

	// Then the stored timestamps are non decreasing
	messages, err := repository.ListConversation(ctx, "alice", "bob")
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal(at, messages[0].CreatedAt)
	req.Equal(at, messages[1].CreatedAt)
	req.Equal(at.Add(time.Second), messages[2].CreatedAt)
	req.True(messages[0].Before(messages[1]))
}

func Test_Concurrent_Appends_Have_A_Total_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), 5)
	writers, perWriter := 8, 10

	// When several goroutines append to the same conversation
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; n < perWriter; n++ {
				sender, recipient := "alice", "bob"
				if w%2 == 1 {
					sender, recipient = recipient, sender
				}
				_, err := repository.Append(ctx, sender, recipient, fmt.Sprintf("%d-%d", w, n))
				req.NoError(err)
			}
		}(w)
	}
	wg.Wait()

	// Then every message got a distinct, gapless sequence in replay order
	messages, err := repository.ListConversation(ctx, "bob", "alice")
	req.NoError(err)
	req.Len(messages, writers*perWriter)
	for i, message := range messages {
		req.Equal(uint64(i+1), message.Sequence)
		if i > 0 {
			req.True(messages[i-1].Before(message))
		}
	}
}

func Test_List_Partners(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), 3)

	// Given messages A→B, B→C, A→A and a repeated A→B
	for _, pair := range [][2]string{{"A", "B"}, {"B", "C"}, {"A", "A"}, {"A", "B"}} {
		_, err := repository.Append(ctx, pair[0], pair[1], "ping")
		req.NoError(err)
	}

	// Then partners are deduplicated and self pairs are excluded
	partnersA, err := repository.ListPartners(ctx, "A")
	req.NoError(err)
	req.Equal([]domain.Identity{"B"}, partnersA)

	partnersB, err := repository.ListPartners(ctx, "B")
	req.NoError(err)
	req.ElementsMatch([]domain.Identity{"A", "C"}, partnersB)

	partnersD, err := repository.ListPartners(ctx, "D")
	req.NoError(err)
	req.Empty(partnersD)

	// And the self conversation is still replayable
	self, err := repository.ListConversation(ctx, "A", "A")
	req.NoError(err)
	req.Len(self, 1)
}
