package models

// Student is a roster entry: mostly static attendee data plus
// boarding/return flags. Not subject to delta sync.
type Student struct {
	CPF          string `json:"cpf"`
	Nome         string `json:"nome"`
	Colegio      string `json:"colegio"`
	Turma        string `json:"turma"`
	Email        string `json:"email"`
	Telefone     string `json:"telefone"`
	IDPasseio    string `json:"id_passeio,omitempty"`
	Embarque     string `json:"embarque,omitempty"`
	Retorno      string `json:"retorno,omitempty"`
	Onibus       string `json:"onibus,omitempty"`
	TemQR        string `json:"tem_qr"`
	FacialStatus string `json:"facial_status,omitempty"`
	InicioViagem string `json:"inicio_viagem"`
	FimViagem    string `json:"fim_viagem"`
}

// Room is a room assignment. Read-only from the protocol's perspective.
type Room struct {
	CPF          string `json:"cpf"`
	Quarto       string `json:"quarto"`
	Local        string `json:"local,omitempty"`
	Nome         string `json:"nome,omitempty"`
	InicioViagem string `json:"inicio_viagem,omitempty"`
	FimViagem    string `json:"fim_viagem,omitempty"`
}

// User is an operator account from the login collection.
type User struct {
	ID     string `json:"id"`
	Nome   string `json:"nome"`
	CPF    string `json:"cpf"`
	Senha  string `json:"senha"`
	Perfil string `json:"perfil"`
}
