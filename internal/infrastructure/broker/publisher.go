package broker

import (
	"context"
	"log/slog"

	"github.com/jobman-auth/internal/observability/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

const transportName = "amqp"

// ChannelSource hands out the current channel and drops broken ones.
type ChannelSource interface {
	Channel(ctx context.Context) (Channel, error)
	Discard(ch Channel)
}

// Publisher publishes JSON messages to direct exchanges. Publishing is
// fire-and-forget: failures are logged and never returned.
type Publisher struct {
	source ChannelSource
	logger *slog.Logger
}

func NewPublisher(source ChannelSource, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{source: source, logger: logger}
}

// PublishDirect declares exchange as a durable direct exchange and publishes
// body under routingKey. logMessage is logged on success.
func (p *Publisher) PublishDirect(ctx context.Context, exchange, routingKey string, body []byte, logMessage string) {
	result := "success"
	defer func() {
		metrics.NotificationsPublishedTotal.WithLabelValues(transportName, result).Inc()
	}()

	ch, err := p.source.Channel(ctx)
	if err != nil {
		result = "failure"
		p.logger.Error("publish direct message failed", "exchange", exchange, "error", err)
		return
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		result = "failure"
		p.logger.Error("publish direct message failed", "exchange", exchange, "error", err)
		p.source.Discard(ch)
		return
	}
	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		result = "failure"
		p.logger.Error("publish direct message failed", "exchange", exchange, "error", err)
		p.source.Discard(ch)
		return
	}
	p.logger.Info(logMessage, "exchange", exchange, "routing_key", routingKey)
}
