package services

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/errors"
	"fmt"
)

// HistoryService reads conversations and partners back from the store,
// restricted to the identities involved.
type HistoryService struct {
	store contract.IMessageStore
}

func NewHistoryService(store contract.IMessageStore) *HistoryService {
	return &HistoryService{store: store}
}

// GetHistory returns the same ordered conversation whatever the argument order.
// Only a participant may read it.
func (s *HistoryService) GetHistory(ctx context.Context, cmd domain.GetHistoryCommand) ([]domain.Message, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	if !domain.NewConversationKey(cmd.UserA, cmd.UserB).Has(cmd.Caller) {
		return nil, fmt.Errorf("%w: %s is not part of this conversation", errors.ErrForbidden, cmd.Caller)
	}
	return s.store.ListConversation(ctx, cmd.UserA, cmd.UserB)
}

func (s *HistoryService) GetPartners(ctx context.Context, cmd domain.GetPartnersCommand) ([]domain.Identity, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	if cmd.Caller != cmd.User {
		return nil, fmt.Errorf("%w: partners of %s", errors.ErrForbidden, cmd.User)
	}
	return s.store.ListPartners(ctx, cmd.User)
}
