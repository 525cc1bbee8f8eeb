package models

// Movement entry kinds that are pure recognition records: they log a
// sighting but never move the person by themselves.
const (
	TipoReconhecimento = "RECONHECIMENTO"
	TipoFacial         = "FACIAL"
)

// MovementLog is one immutable entry of the movement ledger. Entries
// are only ever appended; duplicates are legitimate (repeated scans).
type MovementLog struct {
	Timestamp    string  `json:"timestamp"`
	CPF          string  `json:"cpf"`
	Colegio      string  `json:"colegio"`
	Turma        string  `json:"turma"`
	Nome         string  `json:"nome"`
	Confidence   float64 `json:"confidence"`
	Tipo         string  `json:"tipo"`
	Movimentacao string  `json:"movimentacao,omitempty"`
	PersonID     string  `json:"person_id"`
	Operador     string  `json:"operador"`
	InicioViagem string  `json:"inicio_viagem"`
	FimViagem    string  `json:"fim_viagem"`
	UpdatedAt    string  `json:"updated_at"`
}
