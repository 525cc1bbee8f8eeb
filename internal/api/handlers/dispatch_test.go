package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/embarque/internal/eventbus"
	"github.com/your-org/embarque/internal/ledger"
	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/recordstore"
	"github.com/your-org/embarque/internal/trip"
	"github.com/your-org/embarque/pkg/dto"
)

func newTestDispatcher(store recordstore.Store) *Dispatcher {
	searcher, _ := store.(recordstore.EmbeddingSearcher)
	bus := eventbus.New(store, nil)
	return NewDispatcher(DispatcherConfig{
		Store:             store,
		Ledger:            ledger.New(store, bus),
		Bus:               bus,
		Trips:             trip.New(store, bus),
		Searcher:          searcher,
		EmbeddingDim:      3,
		IdentifyThreshold: 0.5,
		IdentifyLimit:     5,
	})
}

func dispatch(t *testing.T, d *Dispatcher, action string, body map[string]any) gin.H {
	t.Helper()
	if body == nil {
		body = map[string]any{}
	}
	body["action"] = action
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return d.Dispatch(context.Background(), action, raw)
}

func TestUnknownActionIsEnvelopeFailure(t *testing.T) {
	d := newTestDispatcher(recordstore.NewMemoryStore())

	out := dispatch(t, d, "fazerCafe", nil)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["message"], "fazerCafe")
	assert.NotEmpty(t, out["timestamp"])
}

func TestAddPessoaRequiresCoreFields(t *testing.T) {
	d := newTestDispatcher(recordstore.NewMemoryStore())

	out := dispatch(t, d, "addPessoa", map[string]any{"cpf": "111"})
	assert.Equal(t, false, out["success"])
}

func TestAddPessoaUpsertsByCPF(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	out := dispatch(t, d, "addPessoa", map[string]any{
		"cpf": "111", "nome": "Ana", "embedding": []float64{0.1, 0.2, 0.3},
	})
	require.Equal(t, true, out["success"])

	out = dispatch(t, d, "addPessoa", map[string]any{
		"cpf": "111", "nome": "Ana Beatriz", "embedding": []float64{0.1, 0.2, 0.3},
	})
	require.Equal(t, true, out["success"])

	rows, err := store.ListAll(context.Background(), models.CollectionPeople)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ana Beatriz", rows[0].String("nome"))
}

func TestAddPessoaUppercasesMovement(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	dispatch(t, d, "addPessoa", map[string]any{
		"cpf": "111", "nome": "Ana",
		"embedding": []float64{0.1, 0.2, 0.3}, "movimentacao": "praia",
	})

	row, err := store.FindByKey(context.Background(), models.CollectionPeople, "cpf", "111")
	require.NoError(t, err)
	assert.Equal(t, "PRAIA", row.String("movimentacao"))
}

func TestGetAllPeopleExcludesIncompleteEmbeddings(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	dispatch(t, d, "addPessoa", map[string]any{
		"cpf": "111", "nome": "Ana", "embedding": []float64{0.1, 0.2, 0.3},
	})
	// Wrong length: stored, but never served to recognition clients.
	dispatch(t, d, "addPessoa", map[string]any{
		"cpf": "222", "nome": "Bia", "embedding": []float64{0.1},
	})

	out := dispatch(t, d, "getAllPeople", nil)
	require.Equal(t, true, out["success"])
	people, ok := out["data"].([]models.Person)
	require.True(t, ok)
	require.Len(t, people, 1)
	assert.Equal(t, "111", people[0].CPF)
}

func TestGetAllPeopleDeltaCursor(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	dispatch(t, d, "addPessoa", map[string]any{
		"cpf": "111", "nome": "Ana", "embedding": []float64{0.1, 0.2, 0.3},
		"updated_at": "2025-12-01T10:00:00.000Z",
	})
	dispatch(t, d, "addPessoa", map[string]any{
		"cpf": "222", "nome": "Bia", "embedding": []float64{0.1, 0.2, 0.3},
		"updated_at": "2025-12-02T10:00:00.000Z",
	})

	out := dispatch(t, d, "getAllPeople", map[string]any{"since": "2025-12-01T12:00:00.000Z"})
	require.Equal(t, true, out["success"])
	people := out["data"].([]models.Person)
	require.Len(t, people, 1)
	assert.Equal(t, "222", people[0].CPF)
}

func TestIdentificarPessoa(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	dispatch(t, d, "addPessoa", map[string]any{
		"cpf": "111", "nome": "Ana", "embedding": []float64{1, 0, 0},
	})

	out := dispatch(t, d, "identificarPessoa", map[string]any{
		"embedding": []float64{1, 0.01, 0},
	})
	require.Equal(t, true, out["success"])
	results := out["resultados"].([]dto.IdentifyMatch)
	require.Len(t, results, 1)
	assert.Equal(t, "111", results[0].CPF)
	assert.Equal(t, "Ana", results[0].Nome)

	out = dispatch(t, d, "identificarPessoa", map[string]any{
		"embedding": []float64{1, 0},
	})
	assert.Equal(t, false, out["success"])
}

func TestAddMovementLogAndReadBack(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	dispatch(t, d, "addPessoa", map[string]any{
		"cpf": "111", "nome": "Ana", "embedding": []float64{0.1, 0.2, 0.3},
	})

	out := dispatch(t, d, "addMovementLog", map[string]any{
		"people": []map[string]any{
			{"cpf": "111", "personName": "Ana", "tipo": "EMBARQUE", "confidence": 0.91},
		},
	})
	require.Equal(t, true, out["success"])

	out = dispatch(t, d, "getAllLogs", nil)
	require.Equal(t, true, out["success"])
	logs := out["data"].([]models.MovementLog)
	require.Len(t, logs, 1)
	assert.Equal(t, "Ana", logs[0].Nome)

	row, err := store.FindByKey(context.Background(), models.CollectionPeople, "cpf", "111")
	require.NoError(t, err)
	assert.Equal(t, "EMBARQUE", row.String("movimentacao"))
}

// faultStore fails AppendRow after a set number of successful calls.
type faultStore struct {
	*recordstore.MemoryStore
	appendsLeft int
}

func (f *faultStore) AppendRow(ctx context.Context, collection string, row recordstore.Row) error {
	if f.appendsLeft == 0 {
		return errors.New("backend gone")
	}
	f.appendsLeft--
	return f.MemoryStore.AppendRow(ctx, collection, row)
}

func TestAddMovementLogPartialFailureEnvelope(t *testing.T) {
	store := &faultStore{MemoryStore: recordstore.NewMemoryStore(), appendsLeft: 1}
	d := newTestDispatcher(store)

	out := dispatch(t, d, "addMovementLog", map[string]any{
		"people": []map[string]any{
			{"cpf": "111", "tipo": "RECONHECIMENTO"},
			{"cpf": "222", "tipo": "RECONHECIMENTO"},
		},
	})
	require.Equal(t, false, out["success"])
	assert.Contains(t, out["message"], "Falha parcial")
	data := out["data"].(gin.H)
	assert.Equal(t, 1, data["total"])
}

func TestMarcarEventoProcessadoEnvelope(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	id, err := d.bus.Publish(context.Background(), eventbus.TipoViagemEncerrada,
		models.TripWindow{}, nil)
	require.NoError(t, err)

	out := dispatch(t, d, "marcarEventoProcessado", map[string]any{"evento_id": id})
	assert.Equal(t, true, out["success"])

	// Second acknowledgement: distinguishable failure, not a crash.
	out = dispatch(t, d, "marcarEventoProcessado", map[string]any{"evento_id": id})
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["message"], "já processado")

	out = dispatch(t, d, "marcarEventoProcessado", map[string]any{"evento_id": "EVT_NOPE"})
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["message"], "não encontrado")
}

func TestEncerrarViagemWithWindow(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)
	ctx := context.Background()

	for _, col := range models.WindowCollections {
		require.NoError(t, store.AppendRow(ctx, col, recordstore.Row{
			"cpf": "1", "inicio_viagem": "2025-12-01", "fim_viagem": "2025-12-10",
		}))
		require.NoError(t, store.AppendRow(ctx, col, recordstore.Row{
			"cpf": "2", "inicio_viagem": "2026-01-05", "fim_viagem": "2026-01-12",
		}))
	}

	out := dispatch(t, d, "encerrarViagem", map[string]any{
		"inicio_viagem": "2025-12-01", "fim_viagem": "2025-12-10",
	})
	require.Equal(t, true, out["success"])

	for _, col := range models.WindowCollections {
		rows, err := store.ListAll(ctx, col)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "2", rows[0].String("cpf"))
	}
}

func TestGetAllLogsCoercesLegacyTextConfidence(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	require.NoError(t, store.AppendRow(context.Background(), models.CollectionLogs,
		recordstore.Row{"cpf": "111", "tipo": "RECONHECIMENTO", "confidence": "0.87"}))

	out := dispatch(t, d, "getAllLogs", nil)
	require.Equal(t, true, out["success"])
	logs := out["data"].([]models.MovementLog)
	require.Len(t, logs, 1)
	assert.Equal(t, 0.87, logs[0].Confidence)
}

func TestEncerrarViagemRejectsHalfWindow(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)
	ctx := context.Background()

	for _, col := range models.WindowCollections {
		require.NoError(t, store.AppendRow(ctx, col, recordstore.Row{"cpf": "1"}))
	}

	// A window with one half missing may not degenerate into a wipe.
	out := dispatch(t, d, "encerrarViagem", map[string]any{"inicio_viagem": "2025-12-01"})
	require.Equal(t, false, out["success"])

	for _, col := range models.WindowCollections {
		rows, err := store.ListAll(ctx, col)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	}
}

func TestEncerrarViagemWithoutWindowWipesEverything(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)
	ctx := context.Background()

	for _, col := range models.WindowCollections {
		require.NoError(t, store.AppendRow(ctx, col, recordstore.Row{"cpf": "1"}))
	}

	out := dispatch(t, d, "encerrarViagem", nil)
	require.Equal(t, true, out["success"])

	for _, col := range models.WindowCollections {
		rows, err := store.ListAll(ctx, col)
		require.NoError(t, err)
		assert.Empty(t, rows)
	}
}

func TestLogin(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)
	ctx := context.Background()

	require.NoError(t, store.AppendRow(ctx, models.CollectionLogins, recordstore.Row{
		"id": "u1", "cpf": "111", "senha": "segredo", "nome": "Operador", "perfil": "admin",
	}))

	out := dispatch(t, d, "login", map[string]any{"cpf": "111", "senha": "segredo"})
	require.Equal(t, true, out["success"])
	user := out["user"].(dto.LoginUser)
	assert.Equal(t, "ADMIN", user.Perfil)

	out = dispatch(t, d, "login", map[string]any{"cpf": "111", "senha": "errada"})
	assert.Equal(t, false, out["success"])
}

func TestBatchSyncIsolatesItemFailures(t *testing.T) {
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	body := map[string]any{
		"requests": []map[string]any{
			{"action": "getAllPeople"},
			{"action": "encerrarViagem"}, // mutation: rejected inside a batch
			{"action": "getQuartos"},
		},
	}
	out := dispatch(t, d, "batchSync", body)
	require.Equal(t, true, out["success"])
	assert.Equal(t, 3, out["total_requests"])

	responses := out["responses"].([]dto.BatchItemResponse)
	require.Len(t, responses, 3)
	assert.True(t, responses[0].Success)
	assert.False(t, responses[1].Success)
	assert.True(t, responses[2].Success)
}

func TestHandleSyncPostAlwaysHTTP200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := newTestDispatcher(recordstore.NewMemoryStore())

	r := gin.New()
	r.POST("/v1/sync", d.HandleSync)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sync",
		strings.NewReader(`{"action":"acaoInexistente"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope["success"])
	assert.NotEmpty(t, envelope["timestamp"])
}

func TestHandleSyncGetDecodesJSONParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := recordstore.NewMemoryStore()
	d := newTestDispatcher(store)

	r := gin.New()
	r.GET("/v1/sync", d.HandleSync)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/v1/sync?action=addPessoa&cpf=111&nome=Ana&embedding=%5B0.1%2C0.2%2C0.3%5D", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	row, err := store.FindByKey(context.Background(), models.CollectionPeople, "cpf", "111")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Ana", row.String("nome"))
}
