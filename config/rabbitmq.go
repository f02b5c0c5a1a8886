package config

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	connectionName = "record-sync"
	dialHeartbeat  = 10 * time.Second
)

type RabbitMQ struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	User      string `json:"user"`
	Pass      string `json:"pass"`
	Vhost     string `json:"vhost"`
	Kind      string `json:"kind"`
	DialTries uint   `json:"dial_tries"`
}

// URL escapes credentials so passwords with reserved characters survive.
func (r *RabbitMQ) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.User, r.Pass),
		Host:   r.Host + ":" + strconv.Itoa(r.Port),
		Path:   "/" + r.Vhost,
	}
	return u.String()
}

// dialBroker is swapped in tests.
var dialBroker = func(addr string) (*amqp.Connection, error) {
	return amqp.DialConfig(addr, amqp.Config{
		Heartbeat:  dialHeartbeat,
		Properties: amqp.Table{"connection_name": connectionName},
	})
}

// NewRabbitMQConn dials the run-trigger broker, retrying with exponential
// backoff up to DialTries times. The connection is closed when ctx is done.
func NewRabbitMQConn(ctx context.Context, cfg *RabbitMQ) (*amqp.Connection, error) {
	addr := cfg.URL()
	tries := cfg.DialTries
	if tries == 0 {
		tries = 5
	}

	attempt := 0
	operation := func() (*amqp.Connection, error) {
		attempt++
		conn, err := dialBroker(addr)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("host", cfg.Host).Int("attempt", attempt).Msg("broker dial failed")
			return nil, err
		}
		return conn, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	conn, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(tries))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("host", cfg.Host).Uint("tries", tries).Msg("giving up on broker")
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("host", cfg.Host).Str("vhost", cfg.Vhost).Msg("broker connected")
	go func() {
		<-ctx.Done()
		if err := conn.Close(); err != nil && !conn.IsClosed() {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close broker connection")
		}
	}()

	return conn, nil
}
