package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/embarque/internal/deltasync"
	"github.com/your-org/embarque/internal/eventbus"
	"github.com/your-org/embarque/internal/ledger"
	"github.com/your-org/embarque/internal/observability"
	"github.com/your-org/embarque/internal/recordstore"
	"github.com/your-org/embarque/internal/trip"
	"github.com/your-org/embarque/pkg/dto"
)

// Dispatcher routes named actions to the owning component and wraps
// every result in the uniform response envelope. The transport never
// signals failure through HTTP status: callers inspect success.
type Dispatcher struct {
	store             recordstore.Store
	index             deltasync.Index
	ledger            *ledger.Ledger
	bus               *eventbus.Bus
	trips             *trip.Manager
	searcher          recordstore.EmbeddingSearcher
	embeddingDim      int
	identifyThreshold float64
	identifyLimit     int
}

type DispatcherConfig struct {
	Store             recordstore.Store
	Ledger            *ledger.Ledger
	Bus               *eventbus.Bus
	Trips             *trip.Manager
	Searcher          recordstore.EmbeddingSearcher
	EmbeddingDim      int
	IdentifyThreshold float64
	IdentifyLimit     int
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		store:             cfg.Store,
		index:             deltasync.NewIndex(cfg.Store),
		ledger:            cfg.Ledger,
		bus:               cfg.Bus,
		trips:             cfg.Trips,
		searcher:          cfg.Searcher,
		embeddingDim:      cfg.EmbeddingDim,
		identifyThreshold: cfg.IdentifyThreshold,
		identifyLimit:     cfg.IdentifyLimit,
	}
}

// respond builds the uniform envelope every action returns.
func respond(success bool, message string, extra gin.H) gin.H {
	h := gin.H{
		"success":   success,
		"message":   message,
		"timestamp": deltasync.Now(),
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("parse request: %w", err)
	}
	return out, nil
}

// HandleSync is the single action endpoint. POST carries a JSON body
// with an action field; GET carries query parameters, list-valued ones
// JSON-encoded as single string parameters.
func (d *Dispatcher) HandleSync(c *gin.Context) {
	var action string
	var raw json.RawMessage

	if c.Request.Method == http.MethodPost {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusOK, respond(false, "Requisição inválida: sem dados POST", nil))
			return
		}
		var head struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(body, &head); err != nil {
			c.JSON(http.StatusOK, respond(false, "Requisição inválida: JSON malformado", nil))
			return
		}
		action = head.Action
		raw = body
	} else {
		action, raw = rawFromQuery(c)
	}

	c.JSON(http.StatusOK, d.Dispatch(c.Request.Context(), action, raw))
}

// rawFromQuery rebuilds the POST body shape from GET query parameters.
// List-valued parameters arrive JSON-encoded in a single string.
func rawFromQuery(c *gin.Context) (string, json.RawMessage) {
	params := map[string]any{}
	for key, values := range c.Request.URL.Query() {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		switch key {
		case "embedding", "people", "requests":
			var decoded any
			if err := json.Unmarshal([]byte(v), &decoded); err == nil {
				params[key] = decoded
			} else {
				params[key] = v
			}
		case "confidence":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				params[key] = f
			} else {
				params[key] = v
			}
		default:
			params[key] = v
		}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return c.Query("action"), nil
	}
	return c.Query("action"), raw
}

// Dispatch runs one action inside its own error boundary and records
// the outcome. Unknown actions are a plain success:false response.
func (d *Dispatcher) Dispatch(ctx context.Context, action string, raw json.RawMessage) (out gin.H) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("action panicked", "action", action, "panic", r)
			out = respond(false, fmt.Sprintf("Erro no servidor: %v", r), nil)
		}
		success, _ := out["success"].(bool)
		outcome := "error"
		if success {
			outcome = "ok"
		}
		observability.ActionsTotal.WithLabelValues(action, outcome).Inc()
	}()

	switch action {
	case "login":
		return d.login(ctx, raw)
	case "getAllUsers", "getUsuarios":
		return d.getAllUsers(ctx)
	case "getAllPeople", "getPessoas":
		return d.getAllPeople(ctx, raw)
	case "getAllStudents":
		return d.getAllStudents(ctx)
	case "getAlunos":
		return d.getAlunos(ctx, raw)
	case "getQuartos":
		return d.getQuartos(ctx)
	case "addPessoa", "cadastrarFacial", "syncEmbedding":
		return d.addPessoa(ctx, raw)
	case "addMovementLog":
		return d.addMovementLog(ctx, raw)
	case "registrarLog":
		return d.registrarLog(ctx, raw)
	case "getAllLogs", "getLogs":
		return d.getAllLogs(ctx, raw)
	case "encerrarViagem":
		return d.encerrarViagem(ctx, raw)
	case "listarViagens":
		return d.listarViagens(ctx)
	case "enviarTodosParaQuarto":
		return d.enviarTodosParaQuarto(ctx)
	case "getEventos":
		return d.getEventos(ctx, raw)
	case "marcarEventoProcessado":
		return d.marcarEventoProcessado(ctx, raw)
	case "identificarPessoa":
		return d.identificarPessoa(ctx, raw)
	case "batchSync":
		return d.batchSync(ctx, raw)
	default:
		return respond(false, "Ação não reconhecida: "+action, nil)
	}
}

// batchReadActions are the actions a batchSync envelope may carry:
// read-only fan-out, matching what clients actually batch.
var batchReadActions = map[string]bool{
	"getAllUsers":    true,
	"getAllPeople":   true,
	"getAllStudents": true,
	"getAllLogs":     true,
	"getQuartos":     true,
	"getEventos":     true,
	"getAlunos":      true,
}

// batchSync executes independent requests in order. One item's failure
// produces a per-item error entry without aborting the rest; there is
// no cross-action atomicity.
func (d *Dispatcher) batchSync(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.BatchRequest](raw)
	if err != nil {
		return respond(false, "Erro no batch sync: "+err.Error(), nil)
	}
	if len(req.Requests) == 0 {
		return respond(false, "Nenhuma requisição no batch", nil)
	}

	responses := make([]dto.BatchItemResponse, 0, len(req.Requests))
	for _, itemRaw := range req.Requests {
		var head struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(itemRaw, &head); err != nil {
			responses = append(responses, dto.BatchItemResponse{
				Success: false,
				Error:   "item inválido: " + err.Error(),
			})
			continue
		}

		if !batchReadActions[head.Action] {
			responses = append(responses, dto.BatchItemResponse{
				Action:  head.Action,
				Success: false,
				Error:   "Ação não reconhecida: " + head.Action,
			})
			continue
		}

		result := d.Dispatch(ctx, head.Action, itemRaw)
		success, _ := result["success"].(bool)
		item := dto.BatchItemResponse{
			Action:  head.Action,
			Success: success,
			Data:    result,
		}
		if !success {
			if msg, ok := result["message"].(string); ok {
				item.Error = msg
			}
		}
		responses = append(responses, item)
	}

	return respond(true, "Batch sync concluído", gin.H{
		"total_requests": len(req.Requests),
		"responses":      responses,
	})
}
