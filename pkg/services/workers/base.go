package workers

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// MessageHandler processes one message. A returned error naks the message
// so JetStream redelivers it, up to the consumer's MaxDeliver.
type MessageHandler func(*nats.Msg) error

type BaseWorker struct {
	name     string
	js       nats.JetStreamContext
	sub      *nats.Subscription
	consumer string
	stream   string
	subject  string
	log      *logrus.Entry
}

func NewBaseWorker(name string, js nats.JetStreamContext, stream, consumer, subject string, log *logrus.Entry) *BaseWorker {
	return &BaseWorker{
		name:     name,
		js:       js,
		consumer: consumer,
		stream:   stream,
		subject:  subject,
		log:      log.WithField("worker", name),
	}
}

func (w *BaseWorker) Name() string {
	return w.name
}

func (w *BaseWorker) Stop() error {
	if w.sub != nil {
		return w.sub.Drain()
	}
	return nil
}

func (w *BaseWorker) processMessages(ctx context.Context, handler MessageHandler) error {
	sub, err := w.js.PullSubscribe(w.subject, w.consumer,
		nats.ManualAck(),
		nats.Bind(w.stream, w.consumer),
	)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s/%s", w.stream, w.consumer)
	}
	w.sub = sub

	w.log.WithFields(logrus.Fields{"stream": w.stream, "consumer": w.consumer}).Info("worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(10, nats.MaxWait(time.Second))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return ctx.Err()
			}
			w.log.WithError(err).Warn("error fetching messages")
			continue
		}

		for _, msg := range msgs {
			if err := handler(msg); err != nil {
				w.log.WithError(err).WithField("subject", msg.Subject).Warn("message handling failed")
				if err := msg.Nak(); err != nil {
					w.log.WithError(err).Warn("error rejecting message")
				}
				continue
			}
			if err := msg.Ack(); err != nil {
				w.log.WithError(err).Warn("error acknowledging message")
			}
		}
	}
}
