package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jobman-auth/internal/domain"
)

const userSequence = "users"

// UserRepo provides typed DynamoDB operations for the users table.
// Lookups return (nil, nil) when no item matches.
type UserRepo struct {
	client         API
	tableName      string
	identitiesName string
	ids            *Counter
	now            func() time.Time
}

func NewUserRepo(client API, tableName, identitiesName string, ids *Counter) *UserRepo {
	return &UserRepo{client: client, tableName: tableName, identitiesName: identitiesName, ids: ids, now: time.Now}
}

// Create assigns the next numeric id when u.ID is zero and writes the item
// together with one guard item per identity in a single transaction. GSIs do
// not enforce uniqueness, so the guards are what keep username and email unique.
// Returns domain.ErrDuplicateIdentity when either identity is already claimed.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == 0 {
		id, err := r.ids.Next(ctx, userSequence)
		if err != nil {
			return err
		}
		u.ID = id
	}
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(r.tableName),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": fieldUserID},
			}},
			r.identityGuard(usernameIdentity(u.Username), u.ID),
			r.identityGuard(emailIdentity(u.Email), u.ID),
		},
	})
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return domain.ErrDuplicateIdentity
			}
		}
	}
	return err
}

func (r *UserRepo) identityGuard(identity string, userID int64) types.TransactWriteItem {
	return types.TransactWriteItem{Put: &types.Put{
		TableName: aws.String(r.identitiesName),
		Item: map[string]types.AttributeValue{
			fieldIdentity: &types.AttributeValueMemberS{Value: identity},
			fieldUserID:   &types.AttributeValueMemberN{Value: strconv.FormatInt(userID, 10)},
		},
		ConditionExpression:      aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{"#k": fieldIdentity},
	}}
}

func usernameIdentity(username string) string { return "USERNAME#" + username }

func emailIdentity(email string) string { return "EMAIL#" + email }

func (r *UserRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       numKey(fieldUserID, id),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.queryGSI(ctx, indexUsername, fieldUsername, username, nil)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryGSI(ctx, indexEmail, fieldEmail, email, nil)
}

// FindByUsernameOrEmail returns the first user holding either identity.
func (r *UserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error) {
	u, err := r.FindByUsername(ctx, username)
	if err != nil || u != nil {
		return u, err
	}
	return r.FindByEmail(ctx, email)
}

func (r *UserRepo) FindByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.queryGSI(ctx, indexVerificationToken, fieldVerificationToken, token, nil)
}

// FindByResetToken only matches tokens whose expiry is still in the future.
func (r *UserRepo) FindByResetToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.queryGSI(ctx, indexResetToken, fieldResetToken, token, &notExpired{
		attr: fieldResetExpiresAt,
		now:  r.now(),
	})
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.update(ctx, id, map[string]interface{}{
		fieldPasswordHash:   hash,
		fieldResetToken:     nil,
		fieldResetExpiresAt: nil,
	})
}

// UpdateVerificationField sets the verified flag and replaces the pending
// verification token. An empty token clears it.
func (r *UserRepo) UpdateVerificationField(ctx context.Context, id int64, verified bool, token string) error {
	return r.update(ctx, id, map[string]interface{}{
		fieldEmailVerified:     verified,
		fieldVerificationToken: token,
	})
}

// UpdateResetToken replaces any pending reset token with token, valid until expiresAt.
func (r *UserRepo) UpdateResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		fieldResetToken:     token,
		fieldResetExpiresAt: expiresAt.Unix(),
	})
}

func (r *UserRepo) update(ctx context.Context, id int64, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#id"] = fieldUserID
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       numKey(fieldUserID, id),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return err
}

type notExpired struct {
	attr string
	now  time.Time
}

func (r *UserRepo) queryGSI(ctx context.Context, index, attr, value string, filter *notExpired) (*domain.User, error) {
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
	}
	if filter != nil {
		// Limit is applied before the filter, so it is left unset here.
		in.FilterExpression = aws.String("#e > :now")
		in.ExpressionAttributeNames["#e"] = filter.attr
		in.ExpressionAttributeValues[":now"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(filter.now.Unix(), 10)}
	} else {
		in.Limit = aws.Int32(1)
	}
	out, err := r.client.Query(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}
