package chat

import (
	"dm-lab/domain"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

func FromDomain(message domain.Message) *Message {
	return &Message{
		Id:        message.ID.String(),
		Sender:    message.Sender,
		Recipient: message.Recipient,
		Content:   message.Content,
		Sequence:  message.Sequence,
		CreatedAt: message.CreatedAt.UnixNano(),
	}
}

func FromDomainList(messages []domain.Message) []*Message {
	return lo.Map(messages, func(message domain.Message, _ int) *Message {
		return FromDomain(message)
	})
}

// ToDomain returns the zero uuid for an unparsable identifier.
func (m *Message) ToDomain() domain.Message {
	id, _ := uuid.Parse(m.Id)
	return domain.Message{
		ID:        id,
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Content:   m.Content,
		Sequence:  m.Sequence,
		CreatedAt: time.Unix(0, m.CreatedAt).UTC(),
	}
}
