// Package nats implements the message queue port using NATS JetStream, and the
// change notifier and worker invoker on top of it.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/taskcrew/internal/logger"
	"github.com/Strob0t/taskcrew/internal/port/messagequeue"
)

const (
	streamName      = "TASKCREW"
	headerRequestID = "X-Request-ID"
	dlqSuffix       = ".dlq"
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
// Only tasks.> is captured by the stream; worker subjects stay plain request/reply.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url, nats.Name("taskcrew"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"tasks.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

func newMsg(ctx context.Context, subject string, data []byte) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = data
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	return msg
}

// Publish sends a message to the given subject on the stream.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := q.js.PublishMsg(ctx, newMsg(ctx, subject, data)); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
// Messages failing schema validation are moved to {subject}.dlq and acked;
// handler errors are nacked for redelivery. Dead letters matched by a
// wildcard subject are acked and skipped.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	wantDLQ := strings.HasSuffix(subject, dlqSuffix)
	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		if !wantDLQ && strings.HasSuffix(msg.Subject(), dlqSuffix) {
			if ackErr := msg.Ack(); ackErr != nil {
				slog.Error("nats ack failed", "error", ackErr)
			}
			return
		}
		mctx := context.Background()
		if id := msg.Headers().Get(headerRequestID); id != "" {
			mctx = logger.WithRequestID(mctx, id)
		}

		if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
			slog.Warn("message failed validation, moving to dlq", "subject", msg.Subject(), "error", err)
			if _, pubErr := q.js.Publish(mctx, msg.Subject()+dlqSuffix, msg.Data()); pubErr != nil {
				slog.Error("nats dlq publish failed", "subject", msg.Subject(), "error", pubErr)
			}
			if ackErr := msg.Ack(); ackErr != nil {
				slog.Error("nats ack failed", "error", ackErr)
			}
			return
		}

		if err := handler(mctx, msg.Subject(), msg.Data()); err != nil {
			slog.Error("message handler failed", "subject", msg.Subject(), "error", err)
			if nakErr := msg.Nak(); nakErr != nil {
				slog.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// Request sends data on a plain NATS subject and waits for one reply.
func (q *Queue) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	reply, err := q.nc.RequestMsgWithContext(ctx, newMsg(ctx, subject, data))
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("nats request %s: no responders: %w", subject, err)
		}
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return reply.Data, nil
}

// Respond serves request/reply on subject until the returned function is
// called. handler's result is sent back as the reply body.
func (q *Queue) Respond(subject string, handler func(ctx context.Context, data []byte) []byte) (func(), error) {
	sub, err := q.nc.QueueSubscribe(subject, "taskcrew-workers", func(msg *nats.Msg) {
		ctx := context.Background()
		if id := msg.Header.Get(headerRequestID); id != "" {
			ctx = logger.WithRequestID(ctx, id)
		}
		if err := msg.Respond(handler(ctx, msg.Data)); err != nil {
			slog.Error("nats respond failed", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// KeyValue opens the bucket, creating it when missing. Entries expire after ttl.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     ttl,
		History: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Close drains subscriptions and shuts down the NATS connection.
func (q *Queue) Close() error {
	if err := q.nc.Drain(); err != nil {
		q.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
