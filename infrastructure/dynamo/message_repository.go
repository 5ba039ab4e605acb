package dynamo

import (
	"context"
	"dm-lab/domain"
	"dm-lab/errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Item layout:
//
//	PK=CONV#{conversation}  SK=HEAD                Seq, LastAt
//	PK=CONV#{conversation}  SK=MSG#{seq %020d}     ID, Sender, Recipient, Content, Seq, At
//	PK=PARTNERS#{len}:{user}:  SK=P#{partner}
//
// Both orientations of a pair share one partition, so a conversation is
// read with a single Query instead of two merged ones.
const (
	conversationPK = "CONV#"
	partnersPK     = "PARTNERS#"
	headSK         = "HEAD"
	messageSK      = "MSG#"
	partnerSK      = "P#"
)

type MessageRepository struct {
	client      Client
	table       string
	log         *slog.Logger
	now         func() time.Time
	maxAttempts int
}

func NewMessageRepository(client Client, table string, log *slog.Logger, maxAttempts int) *MessageRepository {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &MessageRepository{client: client, table: table, log: log, now: time.Now, maxAttempts: maxAttempts}
}

func (m *MessageRepository) WithClock(now func() time.Time) *MessageRepository {
	m.now = now
	return m
}

// Append reserves the next sequence of the conversation with an atomic
// counter update, then writes the message and the partner index in one
// transaction. A failed transaction leaves a gap in the sequence but no
// visible message.
func (m *MessageRepository) Append(ctx context.Context, sender, recipient domain.Identity, content string) (domain.Message, error) {
	key := domain.NewConversationKey(sender, recipient)
	sequence, at, err := m.reserve(ctx, key)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}

	message := domain.Message{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Sequence:  sequence,
		CreatedAt: at,
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(m.table),
			Item:                toItem(key, message),
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	}}
	if !key.IsSelf() {
		items = append(items,
			types.TransactWriteItem{Put: &types.Put{TableName: aws.String(m.table), Item: partnerItem(sender, recipient)}},
			types.TransactWriteItem{Put: &types.Put{TableName: aws.String(m.table), Item: partnerItem(recipient, sender)}},
		)
	}
	if _, err = m.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return message, nil
}

// reserve increments the conversation counter. The update is conditioned on
// the stored timestamp not being ahead of ours; when it is, the stored value
// is reused so timestamps never go backwards.
func (m *MessageRepository) reserve(ctx context.Context, key domain.ConversationKey) (uint64, time.Time, error) {
	at := m.now().Round(0).UTC()
	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		out, err := m.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(m.table),
			Key:                 itemKey(conversationPK+key.String(), headSK),
			UpdateExpression:    aws.String("ADD #seq :one SET #last = :at"),
			ConditionExpression: aws.String("attribute_not_exists(#last) OR #last <= :at"),
			ExpressionAttributeNames: map[string]string{
				"#seq":  "Seq",
				"#last": "LastAt",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": num("1"),
				":at":  num(strconv.FormatInt(at.UnixNano(), 10)),
			},
			ReturnValues: types.ReturnValueUpdatedNew,
		})
		if err == nil {
			sequence, err := strconv.ParseUint(getNumber(out.Attributes, "Seq"), 10, 64)
			return sequence, at, err
		}
		lastErr = err

		var conditionFailed *types.ConditionalCheckFailedException
		if !errors.As(err, &conditionFailed) {
			return 0, time.Time{}, err
		}
		last, err := m.lastAt(ctx, key)
		if err != nil {
			return 0, time.Time{}, err
		}
		m.log.Debug("Clock behind conversation head, reusing stored timestamp",
			"conversation", key.String(), "attempt", attempt)
		at = last
	}
	return 0, time.Time{}, lastErr
}

func (m *MessageRepository) lastAt(ctx context.Context, key domain.ConversationKey) (time.Time, error) {
	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(m.table),
		Key:            itemKey(conversationPK+key.String(), headSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := strconv.ParseInt(getNumber(out.Item, "LastAt"), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}

func (m *MessageRepository) ListConversation(ctx context.Context, userA, userB domain.Identity) ([]domain.Message, error) {
	key := domain.NewConversationKey(userA, userB)
	items, err := m.query(ctx, conversationPK+key.String(), messageSK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	messages := make([]domain.Message, 0, len(items))
	for _, item := range items {
		message, err := fromItem(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (m *MessageRepository) ListPartners(ctx context.Context, user domain.Identity) ([]domain.Identity, error) {
	items, err := m.query(ctx, partnersPK+domain.Segment(user), partnerSK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return lo.Map(items, func(item map[string]types.AttributeValue, _ int) domain.Identity {
		return strings.TrimPrefix(getString(item, attrSK), partnerSK)
	}), nil
}

// query reads a whole partition range in sort key order, following pagination.
func (m *MessageRepository) query(ctx context.Context, pk, skPrefix string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		out, err := m.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(m.table),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     str(pk),
				":prefix": str(skPrefix),
			},
			ScanIndexForward:  aws.Bool(true),
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func toItem(key domain.ConversationKey, message domain.Message) map[string]types.AttributeValue {
	item := itemKey(conversationPK+key.String(), fmt.Sprintf("%s%020d", messageSK, message.Sequence))
	item["ID"] = str(message.ID.String())
	item["Sender"] = str(message.Sender)
	item["Recipient"] = str(message.Recipient)
	item["Content"] = str(message.Content)
	item["Seq"] = num(strconv.FormatUint(message.Sequence, 10))
	item["At"] = num(strconv.FormatInt(message.CreatedAt.UnixNano(), 10))
	return item
}

func fromItem(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := uuid.Parse(getString(item, "ID"))
	if err != nil {
		return domain.Message{}, err
	}
	sequence, err := strconv.ParseUint(getNumber(item, "Seq"), 10, 64)
	if err != nil {
		return domain.Message{}, err
	}
	nanos, err := strconv.ParseInt(getNumber(item, "At"), 10, 64)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        id,
		Sender:    getString(item, "Sender"),
		Recipient: getString(item, "Recipient"),
		Content:   getString(item, "Content"),
		Sequence:  sequence,
		CreatedAt: time.Unix(0, nanos).UTC(),
	}, nil
}

func partnerItem(user, partner domain.Identity) map[string]types.AttributeValue {
	return itemKey(partnersPK+domain.Segment(user), partnerSK+partner)
}
