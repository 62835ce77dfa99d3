package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("basket-service/nats-publisher")

const defaultPublishTimeout = 5 * time.Second

// JetStream is the part of nats.JetStreamContext the publisher needs.
type JetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

type CheckoutPublisher struct {
	js              JetStream
	stream          string
	subject         string
	duplicateWindow time.Duration
	timeout         time.Duration
	log             logger.Logger
}

func NewCheckoutPublisher(js JetStream, cfg config.NATSConfig, log logger.Logger) (*CheckoutPublisher, error) {
	if js == nil {
		return nil, errors.New("JetStream context cannot be nil")
	}
	if cfg.CheckoutSubject == "" {
		return nil, errors.New("checkout subject is not configured")
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &CheckoutPublisher{
		js:              js,
		stream:          cfg.Stream,
		subject:         cfg.CheckoutSubject,
		duplicateWindow: cfg.DuplicateWindow,
		timeout:         timeout,
		log:             log.Named("checkout_publisher"),
	}, nil
}

// EnsureStream creates the checkout stream when it does not exist yet.
func (p *CheckoutPublisher) EnsureStream(ctx context.Context) error {
	info, err := p.js.StreamInfo(p.stream, nats.Context(ctx))
	if err == nil {
		if !slices.Contains(info.Config.Subjects, p.subject) {
			p.log.Warnf("Stream %s exists but does not bind subject %s; checkout events will not be persisted", p.stream, p.subject)
		}
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", p.stream, err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:       p.stream,
		Subjects:   []string{p.subject},
		Storage:    nats.FileStorage,
		Duplicates: p.duplicateWindow,
	}, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", p.stream, err)
	}
	p.log.Infof("Created stream %s for subject %s", p.stream, p.subject)
	return nil
}

// PublishCheckout publishes event and waits for the stream ack. The checkout id
// is sent as Nats-Msg-Id so the stream drops redeliveries inside its duplicate
// window.
func (p *CheckoutPublisher) PublishCheckout(ctx context.Context, event entity.CheckoutEvent) error {
	ctx, span := tracer.Start(ctx, "NATS.Publish."+p.subject)
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination.name", p.subject),
		attribute.String("messaging.message.id", event.CheckoutID),
	)

	msg, err := p.newMessage(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		p.log.Errorf("Failed to publish checkout %s for user %s: %v", event.CheckoutID, event.UserName, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("failed to publish checkout %s to subject %s: %w", event.CheckoutID, p.subject, err)
	}

	if ack.Duplicate {
		p.log.Infof("Checkout %s was already published (stream %s seq %d)", event.CheckoutID, ack.Stream, ack.Sequence)
		return nil
	}
	p.log.Infof("Checkout %s for user %s published (stream %s seq %d)", event.CheckoutID, event.UserName, ack.Stream, ack.Sequence)
	return nil
}

func (p *CheckoutPublisher) newMessage(ctx context.Context, event entity.CheckoutEvent) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout %s: %w", event.CheckoutID, err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.CheckoutID)
	msg.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(msg.Header))
	return msg, nil
}

// HeaderCarrier adapts nats.Header to the OpenTelemetry TextMapCarrier.
type HeaderCarrier nats.Header

func (c HeaderCarrier) Get(key string) string {
	return nats.Header(c).Get(key)
}

func (c HeaderCarrier) Set(key string, value string) {
	nats.Header(c).Set(key, value)
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
