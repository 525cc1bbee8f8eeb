// Package ledger is the append-only movement log plus the derived
// "current movement" label on each person: a materialized view over an
// event stream, folded one batch at a time.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/your-org/embarque/internal/deltasync"
	"github.com/your-org/embarque/internal/eventbus"
	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/observability"
	"github.com/your-org/embarque/internal/recordstore"
)

type Ledger struct {
	store recordstore.Store
	bus   *eventbus.Bus
}

// New creates a ledger. bus may be nil; movement notification is
// best-effort either way.
func New(store recordstore.Store, bus *eventbus.Bus) *Ledger {
	return &Ledger{store: store, bus: bus}
}

// EffectiveLabel derives the movement label an entry implies. An
// explicit label wins; otherwise a non-recognition kind is itself the
// label; a plain recognition moves nobody. The result is uppercased.
func EffectiveLabel(tipo, movimentacao string) string {
	if m := strings.TrimSpace(movimentacao); m != "" {
		return strings.ToUpper(m)
	}
	t := strings.ToUpper(strings.TrimSpace(tipo))
	if t != "" && t != models.TipoReconhecimento && t != models.TipoFacial {
		return t
	}
	return ""
}

// Append records each entry verbatim on the immutable log (duplicates
// are legitimate re-scans) and folds any derived movement label into
// the matching person row. Within a batch the last entry for a key
// wins; across batches the later write wins, there is no cross-batch
// ordering guarantee. Returns the number of entries appended.
func (l *Ledger) Append(ctx context.Context, entries []models.MovementLog) (int, error) {
	appended := 0
	changed := 0

	for _, e := range entries {
		if e.Timestamp == "" {
			e.Timestamp = deltasync.Now()
		}
		if e.Tipo == "" {
			e.Tipo = models.TipoReconhecimento
		}
		e.Tipo = strings.ToUpper(strings.TrimSpace(e.Tipo))
		if e.PersonID == "" {
			e.PersonID = e.CPF
		}
		if e.Operador == "" {
			e.Operador = "Sistema"
		}
		if e.UpdatedAt == "" {
			e.UpdatedAt = deltasync.Now()
		}

		row, err := recordstore.Encode(e)
		if err != nil {
			return appended, &recordstore.BulkError{Done: appended, Err: err}
		}
		if err := l.store.AppendRow(ctx, models.CollectionLogs, row); err != nil {
			return appended, &recordstore.BulkError{Done: appended, Err: err}
		}
		appended++
		observability.MovementLogsAppended.Inc()

		label := EffectiveLabel(e.Tipo, e.Movimentacao)
		if label == "" || e.CPF == "" {
			continue
		}
		didChange, err := l.updateMovement(ctx, e.CPF, label)
		if err != nil {
			// The log entry is already durable; a failed derivation is
			// reported but does not undo the append.
			return appended, &recordstore.BulkError{Done: appended, Err: err}
		}
		if didChange {
			changed++
		}
	}

	if changed > 0 && l.bus != nil {
		_, err := l.bus.Publish(ctx, eventbus.TipoMovimentacaoAtualizada, models.TripWindow{},
			map[string]any{"pessoas_atualizadas": changed})
		if err != nil {
			slog.Warn("movement event publish failed (non-critical)", "error", err)
		}
	}

	return appended, nil
}

// updateMovement sets the person's current movement label when the
// person exists. Unknown CPFs are logged and skipped, not an error.
func (l *Ledger) updateMovement(ctx context.Context, cpf, label string) (bool, error) {
	row, err := l.store.FindByKey(ctx, models.CollectionPeople, "cpf", cpf)
	if err != nil {
		return false, fmt.Errorf("find person %s: %w", cpf, err)
	}
	if row == nil {
		slog.Warn("movement for unknown person, label not applied", "cpf", cpf, "movimentacao", label)
		return false, nil
	}

	patch := recordstore.Row{"movimentacao": label}
	deltasync.Stamp(patch, "")
	if _, err := l.store.UpsertByKey(ctx, models.CollectionPeople, "cpf", cpf, patch); err != nil {
		return false, fmt.Errorf("update movement for %s: %w", cpf, err)
	}
	return true, nil
}
