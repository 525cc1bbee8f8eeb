package models

// Person is a registered participant with biometric data. The identity
// key is the CPF; at most one live row exists per CPF.
type Person struct {
	CPF          string    `json:"cpf"`
	Colegio      string    `json:"colegio"`
	Turma        string    `json:"turma"`
	Nome         string    `json:"nome"`
	Email        string    `json:"email"`
	Telefone     string    `json:"telefone"`
	Embedding    []float32 `json:"embedding,omitempty"`
	DataCadastro string    `json:"data_cadastro,omitempty"`
	Movimentacao string    `json:"movimentacao"`
	InicioViagem string    `json:"inicio_viagem"`
	FimViagem    string    `json:"fim_viagem"`
	UpdatedAt    string    `json:"updated_at"`
}

// HasValidEmbedding reports whether the embedding is present and has
// the expected length. Rows failing this are incomplete and excluded
// from biometric sync results.
func (p Person) HasValidEmbedding(dim int) bool {
	return len(p.Embedding) == dim
}
