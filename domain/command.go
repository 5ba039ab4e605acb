package domain

// SendMessageCommand is the intent of a sender to deliver content to a recipient.
// Fields are validated by the delivery coordinator before any side effect.
type SendMessageCommand struct {
	Sender    Identity `validate:"required"`
	Recipient Identity `validate:"required"`
	Content   string   `validate:"required"`
}

// GetHistoryCommand asks for the ordered replay of the conversation between
// UserA and UserB on behalf of Caller.
type GetHistoryCommand struct {
	Caller Identity
	UserA  Identity `validate:"required"`
	UserB  Identity `validate:"required"`
}

// GetPartnersCommand asks for every identity User has exchanged messages with.
type GetPartnersCommand struct {
	Caller Identity
	User   Identity `validate:"required"`
}
