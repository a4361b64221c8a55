package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	supportedVersion = 1

	rkVisitRecorded   = "traffic.visit_recorded"
	rkDurationUpdated = "traffic.duration_updated"
)

// ingestor is the slice of the traffic service the consumer needs.
type ingestor interface {
	RecordVisit(ctx context.Context, in service.VisitInput) (domain.StatsSnapshot, error)
	UpdateDuration(ctx context.Context, sessionID string, seconds int) error
}

// Consumer feeds broker-published traffic events through the same ingest
// path the HTTP handlers use. Server-side producers (CDN edges, SSR
// frontends) publish here instead of calling the REST surface.
type Consumer struct {
	rabbitURL string
	exchange  string
	svc       ingestor
}

func NewConsumer(rabbitURL, exchange string, svc ingestor) *Consumer {
	return &Consumer{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
		svc:       svc,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "rabbitmq_consumer").Logger()

	conn, err := amqp.Dial(c.rabbitURL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	// Ensure exchange exists (idempotent)
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	q, err := ch.QueueDeclare(
		"traffic-service.ingest",
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	for _, rk := range []string{rkVisitRecorded, rkDurationUpdated} {
		if err := ch.QueueBind(q.Name, rk, c.exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return err
		}
	}

	if err := ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	deliveries, err := ch.Consume(q.Name, "traffic-service", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	go func() {
		defer func() {
			_ = ch.Close()
			_ = conn.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				if err := c.handleDelivery(ctx, d); err != nil {
					_ = d.Nack(false, true) // transient => requeue
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	log.Info().Str("queue", q.Name).Msg("consumer started")
	return nil
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	baseLog := logger.Logger.With().
		Str("component", "rabbitmq_consumer").
		Str("routing_key", d.RoutingKey).
		Logger()

	var env event.TrafficEventEnvelope[json.RawMessage]
	if err := json.Unmarshal(d.Body, &env); err != nil {
		baseLog.Warn().Err(err).Msg("invalid envelope json; dropping")
		return nil // poison => drop
	}

	if env.Version != supportedVersion {
		baseLog.Warn().Int("version", env.Version).Msg("unsupported envelope version; dropping")
		return nil
	}

	// message_id: prefer envelope.message_id, then AMQP MessageId, else hash fallback
	msgID := strings.TrimSpace(env.MessageID)
	if msgID == "" {
		msgID = strings.TrimSpace(d.MessageId)
	}
	if msgID == "" {
		h := sha256.Sum256(append([]byte(d.RoutingKey+"\n"), d.Body...))
		msgID = "hash:" + hex.EncodeToString(h[:])
	}

	log := baseLog.With().
		Str("message_id", msgID).
		Str("trace_id", strings.TrimSpace(env.TraceID)).
		Logger()

	return applyEvent(ctx, c.svc, d.RoutingKey, env.Payload, log)
}

// applyEvent is the pure dispatch core, split out so it can be tested
// without a broker. Malformed payloads are dropped; store faults are the
// only errors that propagate (and requeue).
func applyEvent(ctx context.Context, svc ingestor, routingKey string, raw json.RawMessage, log zerolog.Logger) error {
	switch routingKey {
	case rkVisitRecorded:
		var p event.VisitRecordedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Msg("invalid payload json; dropping")
			return nil
		}
		_, err := svc.RecordVisit(ctx, service.VisitInput{
			VisitorID:    p.VisitorID,
			SessionID:    p.SessionID,
			PageURL:      p.PageURL,
			Referrer:     p.Referrer,
			IsNewVisitor: p.IsNewVisitor,
		})
		if errors.Is(err, domain.ErrInvalidVisit) {
			log.Warn().Msg("missing visitor/session id; dropping")
			return nil
		}
		return err

	case rkDurationUpdated:
		var p event.DurationUpdatedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Msg("invalid payload json; dropping")
			return nil
		}
		err := svc.UpdateDuration(ctx, p.SessionID, p.Duration)
		if errors.Is(err, domain.ErrInvalidVisit) || errors.Is(err, domain.ErrInvalidDuration) {
			log.Warn().Err(err).Msg("invalid duration update; dropping")
			return nil
		}
		return err

	default:
		log.Warn().Msg("unknown routing key; ignoring")
		return nil
	}
}
