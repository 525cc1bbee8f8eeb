// Package eventbus is the critical-event broadcast channel between
// clients: an append-only event log in the record store with a one-way
// processed flag, polled and acknowledged by consumers. Delivery is
// at-least-once; a NATS mirror adds best-effort push on top.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/your-org/embarque/internal/deltasync"
	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/observability"
	"github.com/your-org/embarque/internal/recordstore"
)

// Event types carried on the bus.
const (
	TipoViagemEncerrada        = "VIAGEM_ENCERRADA"
	TipoMovimentacaoAtualizada = "MOVIMENTACAO_ATUALIZADA"
	TipoRelocacaoGlobal        = "RELOCACAO_GLOBAL"
)

// Distinguishable no-op failures for Acknowledge. A retrying client can
// treat either as "already done".
var (
	ErrEventNotFound    = errors.New("event not found")
	ErrAlreadyProcessed = errors.New("event already processed")
)

type Bus struct {
	store    recordstore.Store
	notifier *Notifier
}

var eventSeq atomic.Int64

// newEventID builds an opaque, process-unique id. The millisecond
// prefix keeps ids creatable in time order; the counter keeps two
// publishes inside the same millisecond from colliding, which would
// leave the second event impossible to acknowledge.
func newEventID() string {
	return fmt.Sprintf("EVT_%d_%d", time.Now().UnixMilli(), eventSeq.Add(1))
}

// New creates a bus over the store. notifier may be nil; push
// notification is an optional extra over polling.
func New(store recordstore.Store, notifier *Notifier) *Bus {
	return &Bus{store: store, notifier: notifier}
}

// Publish appends an event and returns its id. It only fails on store
// I/O; a failed NATS mirror is logged and ignored, since polling remains
// the reliable delivery path.
func (b *Bus) Publish(ctx context.Context, tipo string, window models.TripWindow, dados map[string]any) (string, error) {
	if dados == nil {
		dados = map[string]any{}
	}
	ev := models.Event{
		ID:           newEventID(),
		Timestamp:    deltasync.Now(),
		TipoEvento:   tipo,
		InicioViagem: window.Inicio,
		FimViagem:    window.Fim,
		Dados:        dados,
		Processado:   models.ProcessadoNao,
	}

	row, err := recordstore.Encode(ev)
	if err != nil {
		return "", err
	}
	if err := b.store.AppendRow(ctx, models.CollectionEvents, row); err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	observability.EventsPublished.WithLabelValues(tipo).Inc()

	if b.notifier != nil {
		if err := b.notifier.Publish(ctx, ev); err != nil {
			slog.Warn("event push mirror failed, clients will pick it up by polling",
				"event_id", ev.ID, "tipo", tipo, "error", err)
		}
	}

	slog.Info("event published", "event_id", ev.ID, "tipo", tipo)
	return ev.ID, nil
}

// Poll returns unprocessed events created strictly after since, oldest
// first. Processed events never show up, whatever the time filter.
func (b *Bus) Poll(ctx context.Context, since string) ([]models.Event, error) {
	rows, err := b.store.ListAll(ctx, models.CollectionEvents)
	if err != nil {
		return nil, fmt.Errorf("poll events: %w", err)
	}

	var cursor time.Time
	var hasCursor bool
	if since != "" {
		cursor, hasCursor = deltasync.ParseTime(since)
		if !hasCursor {
			slog.Warn("unparseable event poll cursor, returning all pending", "since", since)
		}
	}

	type pending struct {
		ev models.Event
		ts time.Time
	}
	var out []pending
	for _, r := range rows {
		ev, err := recordstore.Decode[models.Event](r)
		if err != nil {
			slog.Warn("skipping undecodable event row", "error", err)
			continue
		}
		if ev.Processado == models.ProcessadoSim {
			continue
		}
		ts, ok := deltasync.ParseTime(ev.Timestamp)
		if hasCursor {
			if !ok {
				slog.Warn("event with unparseable timestamp, excluded from poll", "event_id", ev.ID)
				continue
			}
			if !ts.After(cursor) {
				continue
			}
		}
		out = append(out, pending{ev: ev, ts: ts})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ts.Before(out[j].ts) })

	events := make([]models.Event, len(out))
	for i, p := range out {
		events[i] = p.ev
	}
	return events, nil
}

// Acknowledge flips the processed flag to SIM. The flag never reverts.
// Unknown ids and repeat acknowledgements fail with their own sentinel
// errors so client retries stay safe.
func (b *Bus) Acknowledge(ctx context.Context, eventID string) error {
	row, err := b.store.FindByKey(ctx, models.CollectionEvents, "id", eventID)
	if err != nil {
		return fmt.Errorf("acknowledge event: %w", err)
	}
	if row == nil {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if row.String("processado") == models.ProcessadoSim {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, eventID)
	}

	if _, err := b.store.UpsertByKey(ctx, models.CollectionEvents, "id", eventID,
		recordstore.Row{"processado": models.ProcessadoSim}); err != nil {
		return fmt.Errorf("acknowledge event: %w", err)
	}
	observability.EventsAcknowledged.Inc()
	return nil
}
