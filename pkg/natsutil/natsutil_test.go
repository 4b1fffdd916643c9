package natsutil

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type job struct {
	UserID string `json:"user_id"`
}

// loopback delivers published messages synchronously to subscribed handlers.
type loopback struct {
	handlers map[string]nats.MsgHandler
	sent     []*nats.Msg
	fail     error
}

func (l *loopback) PublishMsg(m *nats.Msg) error {
	if l.fail != nil {
		return l.fail
	}
	l.sent = append(l.sent, m)
	if h, ok := l.handlers[m.Subject]; ok {
		h(m)
	}
	return nil
}

func (l *loopback) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if l.handlers == nil {
		l.handlers = map[string]nats.MsgHandler{}
	}
	l.handlers[subject] = cb
	return &nats.Subscription{Subject: subject}, nil
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	lb := &loopback{}
	var got []Message[job]
	_, err := Subscribe(lb, "carart.test", func(_ context.Context, m Message[job]) {
		got = append(got, m)
	}, nil)
	require.NoError(t, err)

	require.NoError(t, Publish(context.Background(), lb, "carart.test", job{UserID: "u1"}, 0))
	require.NoError(t, Publish(context.Background(), lb, "carart.test", job{UserID: "u2"}, 2))

	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].Value.UserID)
	assert.Equal(t, 0, got[0].Retries)
	assert.Equal(t, 2, got[1].Retries)
}

func TestSubscribeReportsBadPayload(t *testing.T) {
	lb := &loopback{}
	var bad error
	called := false
	_, err := Subscribe(lb, "carart.test", func(context.Context, Message[job]) { called = true }, func(err error) { bad = err })
	require.NoError(t, err)

	require.NoError(t, PublishRaw(context.Background(), lb, "carart.test", []byte("{not json"), 0))
	assert.False(t, called)
	assert.Error(t, bad)
}

func TestRetriesHeader(t *testing.T) {
	msg := nats.NewMsg("x")
	assert.Equal(t, 0, Retries(msg))
	msg.Header.Set(RetryHeader, "garbage")
	assert.Equal(t, 0, Retries(msg))
	msg.Header.Set(RetryHeader, "3")
	assert.Equal(t, 3, Retries(msg))
	assert.Equal(t, 0, Retries(&nats.Msg{}))
}

func TestPublishWrapsError(t *testing.T) {
	boom := errors.New("down")
	err := Publish(context.Background(), &loopback{fail: boom}, "carart.test", job{}, 0)
	assert.ErrorIs(t, err, boom)
}
