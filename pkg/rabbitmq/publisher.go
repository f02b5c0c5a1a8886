package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"record-sync/config"
)

// Publish declares the topology and sends message as persistent JSON.
func Publish(ctx context.Context, conn *amqp.Connection, cfg *config.RabbitMQ, topology Topology, message any) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := topology.Declare(ch, cfg.Kind); err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, topology.Exchange, topology.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Str("exchange", topology.Exchange).Str("routing_key", topology.RoutingKey).Msg("message published")
	return nil
}
