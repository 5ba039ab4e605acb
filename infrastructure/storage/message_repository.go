package storage

import (
	"context"
	"dm-lab/codec"
	"dm-lab/domain"
	"dm-lab/errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const lockStripes = 64

type MessageRepository struct {
	db          *badger.DB
	log         *slog.Logger
	now         func() time.Time
	maxAttempts int
	// Appends on the same conversation are serialized in process so the
	// optimistic transaction rarely conflicts.
	stripes [lockStripes]sync.Mutex
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, maxAttempts int) *MessageRepository {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &MessageRepository{db: db, log: log, now: time.Now, maxAttempts: maxAttempts}
}

// WithClock replaces the wall clock used to timestamp appended messages.
func (m *MessageRepository) WithClock(now func() time.Time) *MessageRepository {
	m.now = now
	return m
}

// diskMessage is the persisted form of a domain.Message.
type diskMessage struct {
	ID        string `cbor:"1,keyasint"`
	Sender    string `cbor:"2,keyasint"`
	Recipient string `cbor:"3,keyasint"`
	Content   string `cbor:"4,keyasint"`
	Sequence  uint64 `cbor:"5,keyasint"`
	At        int64  `cbor:"6,keyasint"`
}

// conversationHead tracks the last sequence and timestamp handed out for a conversation.
type conversationHead struct {
	Sequence uint64 `cbor:"1,keyasint"`
	LastAt   int64  `cbor:"2,keyasint"`
}

// Append persists a message in BadgerDB and returns the stored record.
// The message, the conversation head and both partner index entries are
// written in one transaction, so a failed write leaves nothing behind.
// The timestamp never goes backwards inside a conversation, even if the
// wall clock does.
func (m *MessageRepository) Append(_ context.Context, sender, recipient domain.Identity, content string) (domain.Message, error) {
	key := domain.NewConversationKey(sender, recipient)
	stripe := &m.stripes[xxhash.Sum64String(key.String())%lockStripes]
	stripe.Lock()
	defer stripe.Unlock()

	var stored domain.Message
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		stored, err = m.append(key, sender, recipient, content)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		m.log.Debug("Append conflicted, retrying", "conversation", key.String(), "attempt", attempt)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return stored, nil
}

func (m *MessageRepository) append(key domain.ConversationKey, sender, recipient domain.Identity, content string) (domain.Message, error) {
	var stored domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		head, err := readHead(txn, key)
		if err != nil {
			return err
		}

		at := m.now().Round(0).UTC()
		if last := time.Unix(0, head.LastAt).UTC(); at.Before(last) {
			at = last
		}
		head.Sequence++
		head.LastAt = at.UnixNano()

		stored = domain.Message{
			ID:        uuid.New(),
			Sender:    sender,
			Recipient: recipient,
			Content:   content,
			Sequence:  head.Sequence,
			CreatedAt: at,
		}

		messageBytes, err := codec.Marshal(fromMessage(stored))
		if err != nil {
			return err
		}
		headBytes, err := codec.Marshal(head)
		if err != nil {
			return err
		}
		if err = txn.Set(messageKey(key, head.Sequence), messageBytes); err != nil {
			return err
		}
		if err = txn.Set(headKey(key), headBytes); err != nil {
			return err
		}
		if key.IsSelf() {
			return nil
		}
		if err = txn.Set(partnerKey(sender, recipient), nil); err != nil {
			return err
		}
		return txn.Set(partnerKey(recipient, sender), nil)
	})
	return stored, err
}

func readHead(txn *badger.Txn, key domain.ConversationKey) (conversationHead, error) {
	var head conversationHead
	item, err := txn.Get(headKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return head, nil
	}
	if err != nil {
		return head, err
	}
	err = item.Value(func(val []byte) error {
		return codec.Unmarshal(val, &head)
	})
	return head, err
}

// ListConversation replays the conversation between userA and userB with a
// prefix scan. Keys carry the zero padded sequence, so Badger's lexicographic
// order is the replay order.
func (m *MessageRepository) ListConversation(_ context.Context, userA, userB domain.Identity) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	prefix := conversationPrefix(domain.NewConversationKey(userA, userB))

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var dm diskMessage
				if err := codec.Unmarshal(val, &dm); err != nil {
					return err
				}
				message, err := toMessage(dm)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return messages, nil
}

// ListPartners scans the partner index of user. Only keys are read.
func (m *MessageRepository) ListPartners(_ context.Context, user domain.Identity) ([]domain.Identity, error) {
	partners := make([]domain.Identity, 0)
	prefix := partnersPrefix(user)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			partners = append(partners, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return partners, nil
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:        message.ID.String(),
		Sender:    message.Sender,
		Recipient: message.Recipient,
		Content:   message.Content,
		Sequence:  message.Sequence,
		At:        message.CreatedAt.UnixNano(),
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        parsedID,
		Sender:    dm.Sender,
		Recipient: dm.Recipient,
		Content:   dm.Content,
		Sequence:  dm.Sequence,
		CreatedAt: time.Unix(0, dm.At).UTC(),
	}, nil
}
