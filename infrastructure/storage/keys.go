package storage

import (
	"dm-lab/domain"
	"fmt"
)

// Key layout:
//
//	msg:{conversation}{sequence %020d}  -> diskMessage
//	head:{conversation}                 -> conversationHead
//	partner:{len}:{user}:{partner}      -> empty
//	user:{username}                     -> diskUser
//
// {conversation} is domain.ConversationKey.String(), which is prefix free,
// so a prefix scan never leaks into another conversation.
const (
	messagePrefix = "msg:"
	headPrefix    = "head:"
	partnerPrefix = "partner:"
	userPrefix    = "user:"
)

func conversationPrefix(key domain.ConversationKey) []byte {
	return []byte(messagePrefix + key.String())
}

func messageKey(key domain.ConversationKey, sequence uint64) []byte {
	return []byte(fmt.Sprintf("%s%s%020d", messagePrefix, key.String(), sequence))
}

func headKey(key domain.ConversationKey) []byte {
	return []byte(headPrefix + key.String())
}

func partnersPrefix(user domain.Identity) []byte {
	return []byte(partnerPrefix + domain.Segment(user))
}

func partnerKey(user, partner domain.Identity) []byte {
	return append(partnersPrefix(user), partner...)
}

func userKey(username string) []byte {
	return []byte(userPrefix + username)
}
