package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/embarque/internal/models"
)

// EventHandler processes one mirrored event.
type EventHandler func(ctx context.Context, ev models.Event) error

// Listener consumes the EVENTOS push mirror, typically to fan events
// out to WebSocket clients.
type Listener struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewListener(natsURL string) (*Listener, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Listener{nc: nc, js: js}, nil
}

// Listen starts consuming mirrored events until the context is
// cancelled. New events only; the poll path covers history.
func (l *Listener) Listen(ctx context.Context, consumerName string, handler EventHandler) error {
	stream, err := l.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				var ev models.Event
				if err := json.Unmarshal(msg.Data(), &ev); err != nil {
					slog.Error("unmarshal mirrored event", "error", err)
					_ = msg.Ack()
					continue
				}
				if err := handler(ctx, ev); err != nil {
					slog.Error("process mirrored event", "event_id", ev.ID, "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("event listener started", "consumer", consumerName)
	return nil
}

func (l *Listener) Close() {
	l.nc.Close()
}
