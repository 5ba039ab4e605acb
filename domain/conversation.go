package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ConversationKey is the unordered pair of identities of a thread.
// Low is always lexicographically lower or equal to High so that
// both orientations of a pair produce the same key.
type ConversationKey struct {
	Low  Identity
	High Identity
}

func NewConversationKey(a, b Identity) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey{Low: a, High: b}
}

// Has reports whether the identity takes part in the conversation.
func (k ConversationKey) Has(identity Identity) bool {
	return k.Low == identity || k.High == identity
}

// IsSelf reports whether both sides of the pair are the same identity.
func (k ConversationKey) IsSelf() bool {
	return k.Low == k.High
}

// String encodes the key with length prefixes ("5:alice:3:bob:").
// The encoding is prefix free, so it is safe to use as a scan prefix
// whatever characters the identities contain.
func (k ConversationKey) String() string {
	return Segment(k.Low) + Segment(k.High)
}

// Segment encodes a single identity as "<len>:<identity>:".
func Segment(identity Identity) string {
	return strconv.Itoa(len(identity)) + ":" + identity + ":"
}

// ParseSegment decodes one Segment from the head of s and returns the rest.
func ParseSegment(s string) (Identity, string, error) {
	idx := strings.IndexByte(s, ':')
	if idx <= 0 {
		return "", "", fmt.Errorf("malformed segment %q", s)
	}
	n, err := strconv.Atoi(s[:idx])
	if err != nil || n < 0 {
		return "", "", fmt.Errorf("malformed segment length %q", s[:idx])
	}
	body := s[idx+1:]
	if len(body) < n+1 || body[n] != ':' {
		return "", "", fmt.Errorf("truncated segment %q", s)
	}
	return body[:n], body[n+1:], nil
}

// ParseConversationKey is the inverse of ConversationKey.String.
func ParseConversationKey(s string) (ConversationKey, string, error) {
	low, rest, err := ParseSegment(s)
	if err != nil {
		return ConversationKey{}, "", err
	}
	high, rest, err := ParseSegment(rest)
	if err != nil {
		return ConversationKey{}, "", err
	}
	return ConversationKey{Low: low, High: high}, rest, nil
}
