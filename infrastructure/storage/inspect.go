package storage

import (
	"bytes"
	"dm-lab/codec"
	"dm-lab/domain"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Record is a decoded view of one key, used by the inspection tool.
type Record struct {
	Key    string
	Kind   string
	At     string
	Detail string
}

// Scan decodes up to limit records whose key starts with prefix.
// A limit of zero means no limit.
func Scan(db *badger.DB, prefix string, limit int) ([]Record, error) {
	var records []Record
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			if limit > 0 && len(records) == limit {
				return nil
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error {
				records = append(records, Describe(key, val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}

// Describe never fails: undecodable values are reported in Detail.
func Describe(key, val []byte) Record {
	record := Record{Key: printable(key), Kind: "RAW", At: "-", Detail: fmt.Sprintf("%d bytes", len(val))}

	switch {
	case bytes.HasPrefix(key, []byte(messagePrefix)):
		record.Kind = "MESSAGE"
		var dm diskMessage
		if err := codec.Unmarshal(val, &dm); err != nil {
			record.Detail = "unmarshal failed: " + err.Error()
			return record
		}
		record.At = time.Unix(0, dm.At).UTC().Format(time.RFC3339Nano)
		record.Detail = fmt.Sprintf("#%d %s -> %s: %s", dm.Sequence, dm.Sender, dm.Recipient, dm.Content)

	case bytes.HasPrefix(key, []byte(headPrefix)):
		record.Kind = "HEAD"
		var head conversationHead
		if err := codec.Unmarshal(val, &head); err != nil {
			record.Detail = "unmarshal failed: " + err.Error()
			return record
		}
		record.At = time.Unix(0, head.LastAt).UTC().Format(time.RFC3339Nano)
		conversation, _, err := domain.ParseConversationKey(strings.TrimPrefix(string(key), headPrefix))
		if err != nil {
			record.Detail = err.Error()
			return record
		}
		record.Detail = fmt.Sprintf("%s <-> %s last sequence %d", conversation.Low, conversation.High, head.Sequence)

	case bytes.HasPrefix(key, []byte(partnerPrefix)):
		record.Kind = "PARTNER"
		user, partner, err := domain.ParseSegment(strings.TrimPrefix(string(key), partnerPrefix))
		if err != nil {
			record.Detail = err.Error()
			return record
		}
		record.Detail = fmt.Sprintf("%s <-> %s", user, partner)

	case bytes.HasPrefix(key, []byte(userPrefix)):
		record.Kind = "USER"
		var du diskUser
		if err := codec.Unmarshal(val, &du); err != nil {
			record.Detail = "unmarshal failed: " + err.Error()
			return record
		}
		record.At = time.Unix(du.CreatedAt, 0).UTC().Format(time.RFC3339)
		record.Detail = fmt.Sprintf("%s roles=%s", du.Username, strings.Join(du.Roles, ","))
	}
	return record
}

// printable keeps message keys readable, sequences are plain digits.
func printable(key []byte) string {
	return strings.ToValidUTF8(string(key), "?")
}
