package services

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DeliveryService persists a message first, then tries to relay it to the
// recipient's live connection. The store is authoritative: a relay failure
// never fails the send.
type DeliveryService struct {
	log               *slog.Logger
	store             contract.IMessageStore
	registry          contract.IRegistry
	maxContentLength  int
	allowSelfMessages bool
	filter            contract.IContentFilter
}

func NewDeliveryService(
	log *slog.Logger,
	store contract.IMessageStore,
	registry contract.IRegistry,
	maxContentLength int,
	allowSelfMessages bool,
) *DeliveryService {
	return &DeliveryService{
		log:               log,
		store:             store,
		registry:          registry,
		maxContentLength:  maxContentLength,
		allowSelfMessages: allowSelfMessages,
	}
}

// WithFilter rewrites every accepted content through filter before it is stored.
func (s *DeliveryService) WithFilter(filter contract.IContentFilter) *DeliveryService {
	s.filter = filter
	return s
}

func (s *DeliveryService) Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(cmd.Content) > s.maxContentLength {
		return domain.Message{}, fmt.Errorf("%w: %d characters max", errors.ErrContentTooLong, s.maxContentLength)
	}
	if !s.allowSelfMessages && cmd.Sender == cmd.Recipient {
		return domain.Message{}, errors.ErrSelfMessage
	}

	content := cmd.Content
	if s.filter != nil {
		var censored []string
		if content, censored = s.filter.Censor(content); len(censored) > 0 {
			s.log.Warn("Content censored",
				"sender", cmd.Sender,
				"recipient", cmd.Recipient,
				"words", censored,
				"lang", whatlanggo.Detect(cmd.Content).Lang.Iso6391())
		}
	}

	message, err := s.store.Append(ctx, cmd.Sender, cmd.Recipient, content)
	if err != nil {
		return domain.Message{}, err
	}

	s.relay(message)
	return message, nil
}

func (s *DeliveryService) relay(message domain.Message) {
	conn, ok := s.registry.Lookup(message.Recipient)
	if !ok {
		s.log.Debug("Recipient offline, message kept for history",
			"message", message.ID, "recipient", message.Recipient)
		return
	}
	if err := conn.Push(message); err != nil {
		s.log.Warn("Live delivery failed",
			"error", fmt.Errorf("%w: %v", errors.ErrRelayFailed, err),
			"message", message.ID,
			"recipient", message.Recipient,
			"connection", conn.ID())
		return
	}
	s.log.Debug("Message relayed", "message", message.ID, "recipient", message.Recipient, "connection", conn.ID())
}
