package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/your-org/embarque/internal/eventbus"
	"github.com/your-org/embarque/pkg/dto"
)

// getEventos polls the critical-event log for unprocessed events newer
// than the client's cursor, oldest first.
func (d *Dispatcher) getEventos(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.EventsRequest](raw)
	if err != nil {
		return respond(false, "Erro ao buscar eventos: "+err.Error(), nil)
	}

	events, err := d.bus.Poll(ctx, req.Timestamp)
	if err != nil {
		return respond(false, "Erro ao buscar eventos: "+err.Error(), nil)
	}
	return respond(true, fmt.Sprintf("%d evento(s) encontrado(s)", len(events)), gin.H{
		"eventos": events,
	})
}

// marcarEventoProcessado flips an event's processed flag. Unknown ids
// and repeat acknowledgements come back success:false with their own
// message, so a retrying client can tell a no-op from a real failure.
func (d *Dispatcher) marcarEventoProcessado(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.AckEventRequest](raw)
	if err != nil {
		return respond(false, "Erro ao marcar evento: "+err.Error(), nil)
	}
	id := req.EventID()
	if id == "" {
		return respond(false, "ID do evento é obrigatório", nil)
	}

	if err := d.bus.Acknowledge(ctx, id); err != nil {
		switch {
		case errors.Is(err, eventbus.ErrEventNotFound):
			return respond(false, "Evento não encontrado: "+id, nil)
		case errors.Is(err, eventbus.ErrAlreadyProcessed):
			return respond(false, "Evento já processado: "+id, nil)
		default:
			return respond(false, "Erro ao marcar evento: "+err.Error(), nil)
		}
	}
	return respond(true, "Evento marcado como processado", gin.H{"evento_id": id})
}
