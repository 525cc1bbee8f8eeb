package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/trip"
	"github.com/your-org/embarque/pkg/dto"
)

// encerrarViagem closes a trip. With a window it removes only the rows
// carrying exactly that (start, end) pair; without one it wipes every
// window-scoped collection. Either way the removal is irreversible, and
// a mid-way failure is reported with the rows already removed.
func (d *Dispatcher) encerrarViagem(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.CloseTripRequest](raw)
	if err != nil {
		return respond(false, "Erro ao encerrar viagem: "+err.Error(), nil)
	}

	inicio, fim := req.Window()
	window := models.TripWindow{Inicio: inicio, Fim: fim}

	// Only a fully absent window means "close everything". A window
	// with one half missing is a malformed request, not a license for
	// an unscoped wipe.
	if !window.IsZero() && (inicio == "" || fim == "") {
		return respond(false, "inicio_viagem e fim_viagem devem ser informados juntos", nil)
	}

	if window.IsZero() {
		res, err := d.trips.CloseAll(ctx)
		if err != nil {
			if done, ok := trip.IsPartial(err); ok {
				return respond(false,
					fmt.Sprintf("Falha parcial ao encerrar: %d registro(s) removido(s) antes do erro", done),
					gin.H{"data": res})
			}
			return respond(false, "Erro ao encerrar viagem: "+err.Error(), nil)
		}
		return respond(true, "Todas as viagens foram encerradas! Todas as abas foram limpas.", gin.H{
			"data": res,
		})
	}

	removed, err := d.trips.CloseWindow(ctx, inicio, fim)
	if err != nil {
		if done, ok := trip.IsPartial(err); ok {
			return respond(false,
				fmt.Sprintf("Falha parcial ao encerrar: %d registro(s) removido(s) antes do erro", done),
				nil)
		}
		return respond(false, "Erro ao encerrar viagem: "+err.Error(), nil)
	}
	return respond(true,
		fmt.Sprintf("Viagem encerrada com sucesso! %d registro(s) removido(s).", removed),
		gin.H{"data": gin.H{
			"inicio_viagem":   inicio,
			"fim_viagem":      fim,
			"total_removidos": removed,
		}})
}

// listarViagens returns the distinct trip windows currently present.
func (d *Dispatcher) listarViagens(ctx context.Context) gin.H {
	windows, err := d.trips.ListWindows(ctx)
	if err != nil {
		return respond(false, "Erro ao listar viagens: "+err.Error(), nil)
	}
	return respond(true, fmt.Sprintf("%d viagem(ns) encontrada(s)", len(windows)), gin.H{
		"viagens": windows,
	})
}

// enviarTodosParaQuarto force-sets every person's movement to QUARTO,
// the nightly "everyone to their rooms" reset.
func (d *Dispatcher) enviarTodosParaQuarto(ctx context.Context) gin.H {
	updated, err := d.trips.RelocateAll(ctx, "QUARTO")
	if err != nil {
		if done, ok := trip.IsPartial(err); ok {
			return respond(false,
				fmt.Sprintf("Falha parcial: %d pessoa(s) atualizada(s) antes do erro", done),
				gin.H{"pessoas_atualizadas": done})
		}
		return respond(false, "Erro ao enviar pessoas para o quarto: "+err.Error(), nil)
	}
	return respond(true, fmt.Sprintf("%d pessoa(s) enviada(s) para QUARTO", updated), gin.H{
		"pessoas_atualizadas": updated,
	})
}
