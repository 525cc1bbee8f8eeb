package models

// Processed flag values for events. The flag is one-way: NAO to SIM.
const (
	ProcessadoNao = "NAO"
	ProcessadoSim = "SIM"
)

// Event is one entry of the critical-event broadcast log. The payload
// is immutable once created; only the processed flag ever changes.
type Event struct {
	ID           string         `json:"id"`
	Timestamp    string         `json:"timestamp"`
	TipoEvento   string         `json:"tipo_evento"`
	InicioViagem string         `json:"inicio_viagem"`
	FimViagem    string         `json:"fim_viagem"`
	Dados        map[string]any `json:"dados"`
	Processado   string         `json:"processado"`
}

// TripWindow is the (start, end) pair scoping records to one trip.
type TripWindow struct {
	Inicio string `json:"inicio_viagem"`
	Fim    string `json:"fim_viagem"`
}

func (w TripWindow) IsZero() bool { return w.Inicio == "" && w.Fim == "" }
