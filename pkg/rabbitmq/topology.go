package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchange and queue a consumer reads from and the dead
// letter pair rejected messages are routed to.
type Topology struct {
	Exchange             string
	Queue                string
	RoutingKey           string
	DeadLetterExchange   string
	DeadLetterQueue      string
	DeadLetterRoutingKey string
}

// RunTopology carries run requests (sync, nonstandard, reports).
var RunTopology = Topology{
	Exchange:             "sync_exchange",
	Queue:                "sync_run_queue",
	RoutingKey:           "sync.run.request",
	DeadLetterExchange:   "sync_exchange_dlx",
	DeadLetterQueue:      "sync_run_queue_dlq",
	DeadLetterRoutingKey: "dlq.sync.run.request",
}

func (t Topology) queueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": t.DeadLetterRoutingKey,
	}
}

// Declare creates the exchanges and queues and binds them. It is idempotent.
func (t Topology) Declare(ch *amqp.Channel, kind string) error {
	if err := ch.ExchangeDeclare(t.Exchange, kind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(t.DeadLetterExchange, kind, true, false, false, false, nil); err != nil {
		return err
	}
	dlq, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dlq.Name, t.DeadLetterRoutingKey, t.DeadLetterExchange, false, nil); err != nil {
		return err
	}
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, t.queueArgs())
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, t.RoutingKey, t.Exchange, false, nil)
}
