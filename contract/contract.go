//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"dm-lab/domain"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// It is used for logging during supervision, avoiding manual naming.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// IMessageStore is the durable, ordered persistence of direct messages.
// Any backend able to append under a per-conversation sequence, range read
// a conversation and list the identities touching a user can implement it.
type IMessageStore interface {
	Append(ctx context.Context, sender, recipient domain.Identity, content string) (domain.Message, error)
	ListConversation(ctx context.Context, userA, userB domain.Identity) ([]domain.Message, error)
	ListPartners(ctx context.Context, user domain.Identity) ([]domain.Identity, error)
}

// User is the stored account of an identity.
type User struct {
	Username     domain.Identity
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

type IUserRepository interface {
	CreateUser(ctx context.Context, username, hashedPassword string) (User, error)
	GetUser(ctx context.Context, username string) (User, error)
}

// Connection is the push side of a live channel bound to one identity.
type Connection interface {
	ID() string
	Identity() domain.Identity
	Push(message domain.Message) error
}

type IRegistry interface {
	Register(identity domain.Identity, conn Connection)
	Lookup(identity domain.Identity) (Connection, bool)
	Unregister(identity domain.Identity, conn Connection) bool
	Online() int
	Presences() []domain.Presence
}

// IContentFilter rewrites message content before it is persisted and
// reports the words it masked.
type IContentFilter interface {
	Censor(content string) (string, []string)
}

// IDeliveryCoordinator persists a message then relays it to the recipient if online.
type IDeliveryCoordinator interface {
	Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
}

type IHistoryService interface {
	GetHistory(ctx context.Context, cmd domain.GetHistoryCommand) ([]domain.Message, error)
	GetPartners(ctx context.Context, cmd domain.GetPartnersCommand) ([]domain.Identity, error)
}

// IAuthService issues and verifies the bearer tokens carrying an identity.
type IAuthService interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
	Verify(token string) (domain.Identity, error)
}
