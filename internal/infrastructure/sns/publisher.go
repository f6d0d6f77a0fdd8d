package sns

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/jobman-auth/internal/config"
	"github.com/jobman-auth/internal/observability/metrics"
)

const transportName = "sns"

type publishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher fans notification events out through an SNS topic. Subscribers
// route on the exchange and routing_key message attributes.
type Publisher struct {
	client   publishAPI
	topicARN string
	logger   *slog.Logger
}

// NewClient creates an SNS client with the same credential and endpoint
// overrides as the DynamoDB and S3 clients.
func NewClient(cfg *config.Config) (*sns.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.SNSRegion)}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	}), nil
}

func NewPublisher(client publishAPI, topicARN string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, topicARN: topicARN, logger: logger}
}

// PublishDirect publishes body to the topic. Failures are logged and swallowed.
func (p *Publisher) PublishDirect(ctx context.Context, exchange, routingKey string, body []byte, logMessage string) {
	result := "success"
	defer func() {
		metrics.NotificationsPublishedTotal.WithLabelValues(transportName, result).Inc()
	}()

	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"exchange":    {DataType: aws.String("String"), StringValue: aws.String(exchange)},
			"routing_key": {DataType: aws.String("String"), StringValue: aws.String(routingKey)},
		},
	})
	if err != nil {
		result = "failure"
		p.logger.Error("sns publish failed", "exchange", exchange, "error", err)
		return
	}
	p.logger.Info(logMessage, "exchange", exchange, "routing_key", routingKey)
}
