package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Counter hands out monotonically increasing numeric ids from an atomic
// ADD on a single item per sequence.
type Counter struct {
	client    API
	tableName string
}

func NewCounter(client API, tableName string) *Counter {
	return &Counter{client: client, tableName: tableName}
}

func (c *Counter) Next(ctx context.Context, name string) (int64, error) {
	out, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.tableName),
		Key:                      strKey(fieldCounterName, name),
		UpdateExpression:         aws.String("ADD #v :one"),
		ExpressionAttributeNames: map[string]string{"#v": fieldCounterValue},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	n, ok := out.Attributes[fieldCounterValue].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("counter %s: missing value", name)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}
