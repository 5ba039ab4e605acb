package dynamo

import (
	"context"
	"dm-lab/contract"
	"dm-lab/errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	userPK    = "USER#"
	profileSK = "PROFILE"
)

type UserRepository struct {
	client Client
	table  string
}

func NewUserRepository(client Client, table string) *UserRepository {
	return &UserRepository{client: client, table: table}
}

func (u *UserRepository) CreateUser(ctx context.Context, username, hashedPassword string) (contract.User, error) {
	user := contract.User{
		Username:     username,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	item := itemKey(userPK+username, profileSK)
	item["PasswordHash"] = str(user.PasswordHash)
	item["Roles"] = str(strings.Join(user.Roles, ","))
	item["CreatedAt"] = num(strconv.FormatInt(user.CreatedAt.Unix(), 10))

	_, err := u.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(u.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return contract.User{}, errors.ErrUserAlreadyExists
	}
	if err != nil {
		return contract.User{}, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return user, nil
}

func (u *UserRepository) GetUser(ctx context.Context, username string) (contract.User, error) {
	out, err := u.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(u.table),
		Key:            itemKey(userPK+username, profileSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return contract.User{}, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	if len(out.Item) == 0 {
		return contract.User{}, errors.ErrUserNotFound
	}
	createdAt, err := strconv.ParseInt(getNumber(out.Item, "CreatedAt"), 10, 64)
	if err != nil {
		return contract.User{}, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return contract.User{
		Username:     username,
		PasswordHash: getString(out.Item, "PasswordHash"),
		Roles:        strings.Split(getString(out.Item, "Roles"), ","),
		CreatedAt:    time.Unix(createdAt, 0).UTC(),
	}, nil
}
