package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jobman-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct{ mock.Mock }

func (m *mockAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}

func (m *mockAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func newTestRepo(api *mockAPI) *UserRepo {
	r := NewUserRepo(api, "users", "identities", NewCounter(api, "counters"))
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	return r
}

func TestCounter_Next(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return aws.ToString(in.TableName) == "counters" && aws.ToString(in.UpdateExpression) == "ADD #v :one"
	})).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{fieldCounterValue: &types.AttributeValueMemberN{Value: "42"}},
	}, nil)

	n, err := NewCounter(api, "counters").Next(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestUserRepo_Create_AssignsID(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{fieldCounterValue: &types.AttributeValueMemberN{Value: "7"}},
	}, nil)
	var captured *dynamodb.TransactWriteItemsInput
	api.On("TransactWriteItems", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*dynamodb.TransactWriteItemsInput) }).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	u := &domain.User{Username: "Ada", Email: "ada@x.io", EmailVerificationToken: "tok"}
	require.NoError(t, newTestRepo(api).Create(context.Background(), u))
	assert.Equal(t, int64(7), u.ID)
	api.AssertExpectations(t)

	require.NotNil(t, captured)
	require.Len(t, captured.TransactItems, 3)

	user := captured.TransactItems[0].Put
	require.NotNil(t, user)
	assert.Equal(t, "users", aws.ToString(user.TableName))
	assert.Equal(t, "attribute_not_exists(#id)", aws.ToString(user.ConditionExpression))
	id, ok := user.Item[fieldUserID].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "7", id.Value)
	assert.NotContains(t, user.Item, fieldResetToken)

	var identities []string
	for _, item := range captured.TransactItems[1:] {
		require.NotNil(t, item.Put)
		assert.Equal(t, "identities", aws.ToString(item.Put.TableName))
		assert.Equal(t, "attribute_not_exists(#k)", aws.ToString(item.Put.ConditionExpression))
		assert.Equal(t, fieldIdentity, item.Put.ExpressionAttributeNames["#k"])
		identities = append(identities, item.Put.Item[fieldIdentity].(*types.AttributeValueMemberS).Value)
	}
	assert.Equal(t, []string{"USERNAME#Ada", "EMAIL#ada@x.io"}, identities)
}

func TestUserRepo_Create_DuplicateIdentity(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{fieldCounterValue: &types.AttributeValueMemberN{Value: "8"}},
	}, nil)
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	})

	err := newTestRepo(api).Create(context.Background(), &domain.User{Username: "Ada", Email: "ada@x.io"})
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)
}

func TestUserRepo_Create_TransactionError(t *testing.T) {
	api := &mockAPI{}
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err := newTestRepo(api).Create(context.Background(), &domain.User{ID: 9, Username: "Ada", Email: "ada@x.io"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateIdentity)
	api.AssertNotCalled(t, "UpdateItem", mock.Anything, mock.Anything)
}

func TestUserRepo_FindByID_NotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	u, err := newTestRepo(api).FindByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUserRepo_FindByEmail_QueryError(t *testing.T) {
	api := &mockAPI{}
	api.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	u, err := newTestRepo(api).FindByEmail(context.Background(), "ada@x.io")
	assert.Error(t, err)
	assert.Nil(t, u)
}

func TestUserRepo_FindByResetToken_FiltersExpired(t *testing.T) {
	api := &mockAPI{}
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		now, ok := in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN)
		return aws.ToString(in.IndexName) == indexResetToken &&
			aws.ToString(in.FilterExpression) == "#e > :now" &&
			in.ExpressionAttributeNames["#e"] == fieldResetExpiresAt &&
			ok && now.Value == "1700000000" &&
			in.Limit == nil
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{{
		fieldUserID:   &types.AttributeValueMemberN{Value: "3"},
		fieldUsername: &types.AttributeValueMemberS{Value: "Ada"},
	}}}, nil)

	u, err := newTestRepo(api).FindByResetToken(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, int64(3), u.ID)
	assert.Equal(t, "Ada", u.Username)
}

func TestUserRepo_FindByToken_EmptySkipsQuery(t *testing.T) {
	api := &mockAPI{}
	r := newTestRepo(api)

	u, err := r.FindByVerificationToken(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, u)
	u, err = r.FindByResetToken(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, u)
	api.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestUserRepo_UpdateVerificationField_ClearsToken(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return aws.ToString(in.UpdateExpression) == "SET #f1 = :v1 REMOVE #f0" &&
			in.ExpressionAttributeNames["#f0"] == fieldVerificationToken
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	require.NoError(t, newTestRepo(api).UpdateVerificationField(context.Background(), 3, true, ""))
	api.AssertExpectations(t)
}

func TestUserRepo_Update_MissingUser(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("nope")})

	err := newTestRepo(api).UpdatePassword(context.Background(), 9, "hash")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
