package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/embarque/internal/eventbus"
	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/recordstore"
)

func TestEffectiveLabel(t *testing.T) {
	tests := []struct {
		name         string
		tipo         string
		movimentacao string
		want         string
	}{
		{"explicit label wins", "RECONHECIMENTO", "praia", "PRAIA"},
		{"recognition alone moves nobody", "RECONHECIMENTO", "", ""},
		{"facial alone moves nobody", "FACIAL", "", ""},
		{"other kind is its own label", "EMBARQUE", "", "EMBARQUE"},
		{"kind is uppercased", "embarque", "", "EMBARQUE"},
		{"label beats kind", "EMBARQUE", "HOTEL", "HOTEL"},
		{"empty everything", "", "", ""},
		{"whitespace label ignored", "RECONHECIMENTO", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveLabel(tt.tipo, tt.movimentacao))
		})
	}
}

func seedPerson(t *testing.T, store recordstore.Store, cpf string) {
	t.Helper()
	_, err := store.UpsertByKey(context.Background(), models.CollectionPeople, "cpf", cpf,
		recordstore.Row{"cpf": cpf, "nome": "Pessoa " + cpf})
	require.NoError(t, err)
}

func TestAppendGrowsLogByBatchSizeIncludingDuplicates(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	l := New(store, nil)

	seedPerson(t, store, "111")

	entry := models.MovementLog{CPF: "111", Tipo: "RECONHECIMENTO", Confidence: 0.93}
	n, err := l.Append(ctx, []models.MovementLog{entry, entry, entry})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := store.ListAll(ctx, models.CollectionLogs)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestAppendFillsDefaults(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	l := New(store, nil)

	_, err := l.Append(ctx, []models.MovementLog{{CPF: "111"}})
	require.NoError(t, err)

	rows, err := store.ListAll(ctx, models.CollectionLogs)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "RECONHECIMENTO", rows[0].String("tipo"))
	assert.Equal(t, "111", rows[0].String("person_id"))
	assert.Equal(t, "Sistema", rows[0].String("operador"))
	assert.NotEmpty(t, rows[0].String("timestamp"))
	assert.NotEmpty(t, rows[0].String("updated_at"))
}

func TestAppendDerivesMovementOnPerson(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	l := New(store, nil)

	seedPerson(t, store, "111")

	_, err := l.Append(ctx, []models.MovementLog{{CPF: "111", Tipo: "EMBARQUE"}})
	require.NoError(t, err)

	row, err := store.FindByKey(ctx, models.CollectionPeople, "cpf", "111")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "EMBARQUE", row.String("movimentacao"))
	assert.NotEmpty(t, row.String("updated_at"))
}

func TestAppendPlainRecognitionLeavesMovementAlone(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	l := New(store, nil)

	seedPerson(t, store, "111")
	_, err := store.UpsertByKey(ctx, models.CollectionPeople, "cpf", "111",
		recordstore.Row{"movimentacao": "HOTEL"})
	require.NoError(t, err)

	_, err = l.Append(ctx, []models.MovementLog{{CPF: "111", Tipo: "RECONHECIMENTO"}})
	require.NoError(t, err)

	row, err := store.FindByKey(ctx, models.CollectionPeople, "cpf", "111")
	require.NoError(t, err)
	assert.Equal(t, "HOTEL", row.String("movimentacao"))
}

func TestAppendLastEntryInBatchWins(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	l := New(store, nil)

	seedPerson(t, store, "111")

	_, err := l.Append(ctx, []models.MovementLog{
		{CPF: "111", Movimentacao: "PRAIA"},
		{CPF: "111", Movimentacao: "HOTEL"},
	})
	require.NoError(t, err)

	row, err := store.FindByKey(ctx, models.CollectionPeople, "cpf", "111")
	require.NoError(t, err)
	assert.Equal(t, "HOTEL", row.String("movimentacao"))
}

func TestAppendUnknownPersonIsLoggedNotFatal(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	l := New(store, nil)

	n, err := l.Append(ctx, []models.MovementLog{{CPF: "desconhecido", Movimentacao: "PRAIA"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := store.ListAll(ctx, models.CollectionLogs)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
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

func TestAppendPartialFailureReportsCompletedCount(t *testing.T) {
	ctx := context.Background()
	mem := recordstore.NewMemoryStore()
	l := New(&faultStore{MemoryStore: mem, appendsLeft: 2}, nil)

	entry := models.MovementLog{CPF: "111", Tipo: "RECONHECIMENTO"}
	n, err := l.Append(ctx, []models.MovementLog{entry, entry, entry})
	require.Error(t, err)
	assert.Equal(t, 2, n)

	var bulk *recordstore.BulkError
	require.ErrorAs(t, err, &bulk)
	assert.Equal(t, 2, bulk.Done)

	rows, err2 := mem.ListAll(ctx, models.CollectionLogs)
	require.NoError(t, err2)
	assert.Len(t, rows, 2)
}

func TestAppendPublishesOneMovementEventPerChangedBatch(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	bus := eventbus.New(store, nil)
	l := New(store, bus)

	seedPerson(t, store, "111")
	seedPerson(t, store, "222")

	_, err := l.Append(ctx, []models.MovementLog{
		{CPF: "111", Movimentacao: "PRAIA"},
		{CPF: "222", Movimentacao: "PRAIA"},
	})
	require.NoError(t, err)

	events, err := store.ListAll(ctx, models.CollectionEvents)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.TipoMovimentacaoAtualizada, events[0].String("tipo_evento"))
}

func TestAppendNoEventWhenNothingMoved(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	bus := eventbus.New(store, nil)
	l := New(store, bus)

	seedPerson(t, store, "111")

	_, err := l.Append(ctx, []models.MovementLog{{CPF: "111", Tipo: "RECONHECIMENTO"}})
	require.NoError(t, err)

	events, err := store.ListAll(ctx, models.CollectionEvents)
	require.NoError(t, err)
	assert.Empty(t, events)
}
