package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/observability"
	"github.com/your-org/embarque/internal/recordstore"
	"github.com/your-org/embarque/internal/trip"
	"github.com/your-org/embarque/pkg/dto"
)

// getAllLogs returns movement log entries changed since the cursor.
func (d *Dispatcher) getAllLogs(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.SinceRequest](raw)
	if err != nil {
		return respond(false, "Erro ao buscar logs: "+err.Error(), nil)
	}

	rows, err := d.index.ChangedSince(ctx, models.CollectionLogs, req.Since)
	if err != nil {
		return respond(false, "Erro ao buscar logs: "+err.Error(), nil)
	}

	logs := make([]models.MovementLog, 0, len(rows))
	for _, r := range rows {
		// Legacy rows carry confidence as text; coerce before decoding
		// so one old row does not drop out of the listing.
		if _, ok := r["confidence"]; ok {
			r["confidence"] = r.Float("confidence")
		}
		entry, err := recordstore.Decode[models.MovementLog](r)
		if err != nil {
			slog.Warn("skipping undecodable log row", "error", err)
			continue
		}
		logs = append(logs, entry)
	}
	observability.SyncRowsReturned.WithLabelValues(models.CollectionLogs).Add(float64(len(logs)))

	msg := fmt.Sprintf("%d logs encontrados", len(logs))
	if req.Since != "" {
		msg = fmt.Sprintf("%d logs modificados desde %s", len(logs), req.Since)
	}
	return respond(true, msg, gin.H{"data": logs})
}

// addMovementLog appends a batch of movement entries collected offline.
// Every entry is appended even when it duplicates an earlier one; the
// derived movement label on each person is folded in afterwards.
func (d *Dispatcher) addMovementLog(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.MovementLogRequest](raw)
	if err != nil {
		return respond(false, "Erro ao registrar logs: "+err.Error(), nil)
	}
	if len(req.People) == 0 {
		return respond(false, "Nenhum log para processar", nil)
	}

	entries := make([]models.MovementLog, 0, len(req.People))
	for _, e := range req.People {
		inicio, fim := e.Window()
		entries = append(entries, models.MovementLog{
			Timestamp:    e.Timestamp,
			CPF:          e.CPF,
			Colegio:      e.Colegio,
			Turma:        e.Turma,
			Nome:         e.Name(),
			Confidence:   e.Confidence,
			Tipo:         e.Tipo,
			Movimentacao: e.Label(),
			PersonID:     e.PersonID,
			Operador:     e.OperadorNome,
			InicioViagem: inicio,
			FimViagem:    fim,
			UpdatedAt:    e.UpdatedAt,
		})
	}

	appended, err := d.ledger.Append(ctx, entries)
	if err != nil {
		if done, ok := trip.IsPartial(err); ok {
			return respond(false,
				fmt.Sprintf("Falha parcial: %d de %d log(s) registrado(s)", done, len(entries)),
				gin.H{"data": gin.H{"total": done}})
		}
		return respond(false, "Erro ao registrar logs: "+err.Error(), nil)
	}

	return respond(true, fmt.Sprintf("%d log(s) registrado(s) com sucesso", appended), gin.H{
		"data": gin.H{"total": appended},
	})
}

// registrarLog is the single-entry compatibility form of addMovementLog
// kept for older client builds.
func (d *Dispatcher) registrarLog(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.RegisterLogRequest](raw)
	if err != nil {
		return respond(false, "Erro ao registrar log: "+err.Error(), nil)
	}
	if req.CPF == "" {
		return respond(false, "Dados incompletos: cpf é obrigatório", nil)
	}

	_, err = d.ledger.Append(ctx, []models.MovementLog{{
		CPF:          req.CPF,
		Nome:         req.Nome,
		Colegio:      req.Colegio,
		Turma:        req.Turma,
		Confidence:   req.Confidence,
		Tipo:         req.Tipo,
		Movimentacao: req.Movimentacao,
		UpdatedAt:    req.UpdatedAt,
	}})
	if err != nil {
		return respond(false, "Erro ao registrar log: "+err.Error(), nil)
	}
	return respond(true, "Log registrado com sucesso", nil)
}
