// Package trip holds the destructive bulk operations on a trip window:
// closing a trip (scoped or global wipe) and mass relocation. None of
// these are transactional; a mid-way failure leaves the store partially
// mutated and is reported with the count completed so far.
package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/your-org/embarque/internal/deltasync"
	"github.com/your-org/embarque/internal/eventbus"
	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/observability"
	"github.com/your-org/embarque/internal/recordstore"
)

type Manager struct {
	store recordstore.Store
	bus   *eventbus.Bus
}

func New(store recordstore.Store, bus *eventbus.Bus) *Manager {
	return &Manager{store: store, bus: bus}
}

// NormalizeWindowValue canonicalizes a window token for exact-match
// comparison: date-like values become UTC RFC3339 with milliseconds,
// anything else is compared as a trimmed string.
func NormalizeWindowValue(v string) string {
	if t, ok := deltasync.ParseTime(v); ok {
		return t.UTC().Format(deltasync.Layout)
	}
	return strings.TrimSpace(v)
}

// CloseResult reports what a closure removed.
type CloseResult struct {
	Cleared []string `json:"abas_limpas"`
	Removed int      `json:"total_removidos"`
}

// CloseAll wipes every row of the window-scoped collections. A blunt,
// unscoped, irreversible reset: callers must have verified no other
// trip window is active. Emits VIAGEM_ENCERRADA on success.
func (m *Manager) CloseAll(ctx context.Context) (CloseResult, error) {
	res := CloseResult{}
	for _, col := range models.WindowCollections {
		n, err := m.store.DeleteRowsWhere(ctx, col, func(recordstore.Row) bool { return true })
		res.Removed += n
		observability.TripRowsRemoved.WithLabelValues(col).Add(float64(n))
		if err != nil {
			return res, &recordstore.BulkError{Done: res.Removed, Err: fmt.Errorf("clear %s: %w", col, err)}
		}
		res.Cleared = append(res.Cleared, col)
	}

	m.publishClosed(ctx, models.TripWindow{}, map[string]any{
		"tipo":        "TODAS",
		"abas_limpas": res.Cleared,
	})

	slog.Info("all trips closed", "rows_removed", res.Removed)
	return res, nil
}

// CloseWindow removes only rows whose own (start, end) pair exactly
// equals the given pair after normalization. Not a range or overlap
// test. Returns the total row count removed across collections.
func (m *Manager) CloseWindow(ctx context.Context, inicio, fim string) (int, error) {
	wantInicio := NormalizeWindowValue(inicio)
	wantFim := NormalizeWindowValue(fim)

	total := 0
	for _, col := range models.WindowCollections {
		n, err := m.store.DeleteRowsWhere(ctx, col, func(r recordstore.Row) bool {
			return NormalizeWindowValue(r.String("inicio_viagem")) == wantInicio &&
				NormalizeWindowValue(r.String("fim_viagem")) == wantFim
		})
		total += n
		observability.TripRowsRemoved.WithLabelValues(col).Add(float64(n))
		if err != nil {
			return total, &recordstore.BulkError{Done: total, Err: fmt.Errorf("clear %s: %w", col, err)}
		}
	}

	m.publishClosed(ctx, models.TripWindow{Inicio: inicio, Fim: fim}, map[string]any{
		"tipo":            "ESPECIFICA",
		"inicio_viagem":   inicio,
		"fim_viagem":      fim,
		"total_removidos": total,
	})

	slog.Info("trip window closed", "inicio_viagem", inicio, "fim_viagem", fim, "rows_removed", total)
	return total, nil
}

// RelocateAll sets every person's movement label to a fixed value in
// one pass. Same hazard profile as closure: unbounded row count, no
// transaction, partial failure reported with the completed count.
func (m *Manager) RelocateAll(ctx context.Context, label string) (int, error) {
	rows, err := m.store.ListAll(ctx, models.CollectionPeople)
	if err != nil {
		return 0, fmt.Errorf("list people: %w", err)
	}

	updated := 0
	for _, r := range rows {
		cpf := r.String("cpf")
		if cpf == "" {
			continue
		}
		patch := recordstore.Row{"movimentacao": label}
		deltasync.Stamp(patch, "")
		if _, err := m.store.UpsertByKey(ctx, models.CollectionPeople, "cpf", cpf, patch); err != nil {
			return updated, &recordstore.BulkError{Done: updated, Err: fmt.Errorf("relocate %s: %w", cpf, err)}
		}
		updated++
	}

	if m.bus != nil {
		_, err := m.bus.Publish(ctx, eventbus.TipoRelocacaoGlobal, models.TripWindow{}, map[string]any{
			"movimentacao":        label,
			"pessoas_atualizadas": updated,
		})
		if err != nil {
			slog.Warn("relocation event publish failed (non-critical)", "error", err)
		}
	}

	slog.Info("global relocation applied", "movimentacao", label, "updated", updated)
	return updated, nil
}

// ListWindows returns the distinct trip windows present in the roster.
func (m *Manager) ListWindows(ctx context.Context) ([]models.TripWindow, error) {
	rows, err := m.store.ListAll(ctx, models.CollectionRoster)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}

	seen := map[string]bool{}
	var windows []models.TripWindow
	for _, r := range rows {
		inicio := NormalizeWindowValue(r.String("inicio_viagem"))
		fim := NormalizeWindowValue(r.String("fim_viagem"))
		if inicio == "" || fim == "" {
			continue
		}
		key := inicio + "|" + fim
		if seen[key] {
			continue
		}
		seen[key] = true
		windows = append(windows, models.TripWindow{Inicio: inicio, Fim: fim})
	}
	return windows, nil
}

// publishClosed emits the closure event. Best-effort: the rows are
// already gone, so a failed publish never flips the operation result.
func (m *Manager) publishClosed(ctx context.Context, window models.TripWindow, dados map[string]any) {
	if m.bus == nil {
		return
	}
	if _, err := m.bus.Publish(ctx, eventbus.TipoViagemEncerrada, window, dados); err != nil {
		slog.Warn("trip closure event publish failed (non-critical)", "error", err)
	}
}

// IsPartial reports whether err marks a bulk operation that mutated
// some rows before failing, and how many.
func IsPartial(err error) (int, bool) {
	var bulk *recordstore.BulkError
	if errors.As(err, &bulk) {
		return bulk.Done, true
	}
	return 0, false
}
