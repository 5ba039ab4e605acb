// Package domain contains core concepts of the direct messaging system.
// This file defines Message records and their ordering rules.
// Messages are immutable once persisted by the store.
package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Identity is an externally verified user name.
type Identity = string

// Message represents an immutable persisted direct message.
type Message struct {
	ID        uuid.UUID // unique identifier
	Sender    Identity
	Recipient Identity
	Content   string
	// Sequence is assigned by the store and strictly increases per conversation.
	Sequence  uint64
	CreatedAt time.Time
}

// Conversation returns the normalized key of the pair this message belongs to.
func (m Message) Conversation() ConversationKey {
	return NewConversationKey(m.Sender, m.Recipient)
}

// Before reports whether m is replayed before other.
// Ordering is (CreatedAt, Sequence, ID) ascending, which is total
// because Sequence is unique inside a conversation.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	if m.Sequence != other.Sequence {
		return m.Sequence < other.Sequence
	}
	return bytes.Compare(m.ID[:], other.ID[:]) < 0
}
