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

const (
	EventsStreamName  = "EVENTOS"
	EventsSubjectBase = "eventos"
)

// Notifier mirrors published events onto a JetStream subject so
// connected clients hear about them without waiting for their next
// poll. Strictly best-effort: the store-backed log is the source of
// truth for delivery.
type Notifier struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNotifier(natsURL string) (*Notifier, error) {
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

	return &Notifier{nc: nc, js: js}, nil
}

// EnsureStream creates the EVENTOS stream if it doesn't exist. Retries
// up to 30 times (1s apart) to handle NATS startup delay.
func (n *Notifier) EnsureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        EventsStreamName,
		Subjects:    []string{EventsSubjectBase + ".>"},
		Retention:   jetstream.InterestPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Description: "Critical-event push mirror",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := n.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// Publish mirrors one event to eventos.<tipo>.
func (n *Notifier) Publish(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", EventsSubjectBase, ev.TipoEvento)
	if _, err := n.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (n *Notifier) Ping() error {
	if !n.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (n *Notifier) Close() {
	n.nc.Close()
}
