// Package amqpconnector is the RabbitMQ-backed connector (C13): it
// declares a durable queue bound to a topic exchange, dead-letters
// malformed deliveries, and feeds parsed ingest.v1 envelopes into the
// shared connectors.IngestFunc sink via a bounded worker pool.
//
// Grounded on
// email-service/app/consumer/consumer.go's declare/bind/Qos/Consume
// shape and its manual-ack/nack handling, adapted from email's two
// fixed auth-event queues to a single configurable connector queue
// carrying ingest.v1 payloads instead of auth events.
package amqpconnector

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/apperrors"
	"github.com/tzeusy/switchboard/internal/buffer"
	"github.com/tzeusy/switchboard/internal/connectors"
	"github.com/tzeusy/switchboard/internal/contracts"
)

type Config struct {
	Exchange       string
	Queue          string
	RoutingKey     string
	DLXName        string
	DLRoutingKey   string
	PrefetchCount  int
	WorkerPoolSize int

	// ConnectorType/EndpointIdentity identify this connector instance in
	// connector_registry, keying its heartbeat/rollup writes.
	ConnectorType    string
	EndpointIdentity string
	HeartbeatEvery   time.Duration
}

type Connector struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	cfg   Config
	log   zerolog.Logger
	pool  *buffer.WorkerPool
	store *connectors.Store
}

func New(conn *amqp.Connection, ch *amqp.Channel, cfg Config, log zerolog.Logger, store *connectors.Store) *Connector {
	if cfg.HeartbeatEvery == 0 {
		cfg.HeartbeatEvery = 30 * time.Second
	}
	return &Connector{conn: conn, ch: ch, cfg: cfg, log: log, pool: buffer.NewWorkerPool(cfg.WorkerPoolSize), store: store}
}

func (c *Connector) Start(ctx context.Context, sink connectors.IngestFunc) error {
	go c.heartbeatLoop(ctx)

	if err := c.ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	_, err := c.ch.QueueDeclare(
		c.cfg.Queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    c.cfg.DLXName,
			"x-dead-letter-routing-key": c.cfg.DLRoutingKey,
		},
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := c.ch.QueueBind(c.cfg.Queue, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.log.Info().Str("queue", c.cfg.Queue).Msg("amqp connector started")

	go c.processMessages(ctx, msgs, sink)

	<-ctx.Done()
	c.log.Info().Msg("shutting down amqp connector")
	c.pool.Wait()
	return c.ch.Close()
}

func (c *Connector) processMessages(ctx context.Context, msgs <-chan amqp.Delivery, sink connectors.IngestFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-msgs:
			if !ok {
				return
			}
			c.pool.Submit(func() {
				c.handleDelivery(ctx, delivery, sink)
			})
		}
	}
}

const maxBodyBytes = 1 << 20

func (c *Connector) handleDelivery(ctx context.Context, delivery amqp.Delivery, sink connectors.IngestFunc) {
	start := time.Now()

	if len(delivery.Body) > maxBodyBytes {
		c.log.Error().Int("size", len(delivery.Body)).Msg("envelope body too large, dead-lettering")
		_ = c.store.RecordIngest(ctx, c.cfg.ConnectorType, c.cfg.EndpointIdentity, false, false)
		_ = delivery.Nack(false, false)
		return
	}

	env, err := contracts.ParseIngestV1(delivery.Body)
	if err != nil {
		c.log.Error().Err(err).Msg("envelope failed validation, dead-lettering")
		_ = c.store.RecordIngest(ctx, c.cfg.ConnectorType, c.cfg.EndpointIdentity, false, false)
		_ = delivery.Nack(false, false)
		return
	}

	deliveryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := sink(deliveryCtx, *env)
	if err != nil {
		ae, _ := apperrors.As(err)
		if ae != nil && (ae.Code == apperrors.CodeValidation || ae.Code == apperrors.CodePolicyViolation) {
			c.log.Warn().Err(err).Str("external_event_id", env.Event.ExternalEventID).Msg("non-retryable ingest error, acking")
			_ = c.store.RecordIngest(ctx, c.cfg.ConnectorType, c.cfg.EndpointIdentity, false, false)
			_ = delivery.Ack(false)
			return
		}
		c.log.Error().Err(err).Str("external_event_id", env.Event.ExternalEventID).Msg("ingest failed, requeueing")
		_ = delivery.Nack(false, true)
		return
	}

	_ = c.store.RecordIngest(ctx, c.cfg.ConnectorType, c.cfg.EndpointIdentity, true, resp.Duplicate)
	_ = delivery.Ack(false)
	c.log.Debug().Dur("duration", time.Since(start)).Msg("envelope ingested")
}
