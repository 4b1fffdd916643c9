// Package natsutil provides typed JSON publish/subscribe helpers over NATS
// with OpenTelemetry trace propagation and retry-count headers.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// RetryHeader carries how many times a message has been redelivered.
const RetryHeader = "X-Retry-Count"

// Publisher is the publishing half of *nats.Conn.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Subscriber is the subscribing half of *nats.Conn.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// headerCarrier adapts nats.Msg headers for the OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Message is a decoded delivery.
type Message[T any] struct {
	Subject string
	Value   T
	Retries int
	Data    []byte
}

// Publish serializes v as JSON and publishes it with the given retry count.
// Trace context from ctx is injected into the headers.
func Publish[T any](ctx context.Context, p Publisher, subject string, v T, retries int) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("natsutil: marshal %s: %w", subject, err)
	}
	return PublishRaw(ctx, p, subject, data, retries)
}

// PublishRaw publishes already-encoded data.
func PublishRaw(ctx context.Context, p Publisher, subject string, data []byte, retries int) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	if retries > 0 {
		msg.Header.Set(RetryHeader, strconv.Itoa(retries))
	}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.PublishMsg(msg); err != nil {
		return fmt.Errorf("natsutil: publish %s: %w", subject, err)
	}
	return nil
}

// Retries reads the retry header of msg; missing or garbled means 0.
func Retries(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n, err := strconv.Atoi(msg.Header.Get(RetryHeader))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Decode turns a raw delivery into a Message and the context carried in its
// headers.
func Decode[T any](msg *nats.Msg) (context.Context, Message[T], error) {
	m := Message[T]{Subject: msg.Subject, Retries: Retries(msg), Data: msg.Data}
	if err := json.Unmarshal(msg.Data, &m.Value); err != nil {
		return nil, m, fmt.Errorf("natsutil: decode %s: %w", msg.Subject, err)
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
	return ctx, m, nil
}

// Subscribe registers handler for JSON messages of type T. Messages that do
// not decode are passed to onBad (if non-nil) and otherwise dropped.
func Subscribe[T any](s Subscriber, subject string, handler func(context.Context, Message[T]), onBad func(error)) (*nats.Subscription, error) {
	return s.Subscribe(subject, func(msg *nats.Msg) {
		ctx, m, err := Decode[T](msg)
		if err != nil {
			if onBad != nil {
				onBad(err)
			}
			return
		}
		handler(ctx, m)
	})
}
