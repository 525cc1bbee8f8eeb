package dto

import "encoding/json"

// The deployed mobile clients send a mix of snake_case and camelCase
// field names for the same values; request types accept both and
// resolve through the helper methods.

type PersonRequest struct {
	CPF             string    `json:"cpf"`
	Nome            string    `json:"nome"`
	Colegio         string    `json:"colegio"`
	Turma           string    `json:"turma"`
	Email           string    `json:"email"`
	Telefone        string    `json:"telefone"`
	Embedding       []float32 `json:"embedding"`
	PersonID        string    `json:"personId"`
	Movimentacao    string    `json:"movimentacao"`
	InicioViagem    string    `json:"inicio_viagem"`
	InicioViagemAlt string    `json:"inicioViagem"`
	FimViagem       string    `json:"fim_viagem"`
	FimViagemAlt    string    `json:"fimViagem"`
	UpdatedAt       string    `json:"updated_at"`
}

func (r PersonRequest) Window() (inicio, fim string) {
	inicio = r.InicioViagem
	if inicio == "" {
		inicio = r.InicioViagemAlt
	}
	fim = r.FimViagem
	if fim == "" {
		fim = r.FimViagemAlt
	}
	return inicio, fim
}

type MovementEntry struct {
	Timestamp       string  `json:"timestamp"`
	CPF             string  `json:"cpf"`
	Colegio         string  `json:"colegio"`
	Turma           string  `json:"turma"`
	PersonName      string  `json:"personName"`
	Nome            string  `json:"nome"`
	Confidence      float64 `json:"confidence"`
	Tipo            string  `json:"tipo"`
	Movimentacao    string  `json:"movimentacao"`
	Movimento       string  `json:"movimento"`
	PersonID        string  `json:"personId"`
	OperadorNome    string  `json:"operadorNome"`
	InicioViagem    string  `json:"inicio_viagem"`
	InicioViagemAlt string  `json:"inicioViagem"`
	FimViagem       string  `json:"fim_viagem"`
	FimViagemAlt    string  `json:"fimViagem"`
	UpdatedAt       string  `json:"updated_at"`
}

func (e MovementEntry) Name() string {
	if e.PersonName != "" {
		return e.PersonName
	}
	return e.Nome
}

func (e MovementEntry) Label() string {
	if e.Movimentacao != "" {
		return e.Movimentacao
	}
	return e.Movimento
}

func (e MovementEntry) Window() (inicio, fim string) {
	inicio = e.InicioViagem
	if inicio == "" {
		inicio = e.InicioViagemAlt
	}
	fim = e.FimViagem
	if fim == "" {
		fim = e.FimViagemAlt
	}
	return inicio, fim
}

type MovementLogRequest struct {
	People []MovementEntry `json:"people"`
}

// RegisterLogRequest is the single-entry compatibility form.
type RegisterLogRequest struct {
	CPF          string  `json:"cpf"`
	Nome         string  `json:"nome"`
	Colegio      string  `json:"colegio"`
	Turma        string  `json:"turma"`
	Confidence   float64 `json:"confidence"`
	Tipo         string  `json:"tipo"`
	Movimentacao string  `json:"movimentacao"`
	UpdatedAt    string  `json:"updated_at"`
}

type SinceRequest struct {
	Since string `json:"since"`
}

type EventsRequest struct {
	Timestamp string `json:"timestamp"`
}

type AckEventRequest struct {
	EventoID    string `json:"evento_id"`
	EventoIDAlt string `json:"eventoId"`
	ID          string `json:"id"`
}

func (r AckEventRequest) EventID() string {
	if r.EventoID != "" {
		return r.EventoID
	}
	if r.EventoIDAlt != "" {
		return r.EventoIDAlt
	}
	return r.ID
}

type CloseTripRequest struct {
	InicioViagem    string `json:"inicio_viagem"`
	InicioViagemAlt string `json:"inicioViagem"`
	FimViagem       string `json:"fim_viagem"`
	FimViagemAlt    string `json:"fimViagem"`
}

func (r CloseTripRequest) Window() (inicio, fim string) {
	inicio = r.InicioViagem
	if inicio == "" {
		inicio = r.InicioViagemAlt
	}
	fim = r.FimViagem
	if fim == "" {
		fim = r.FimViagemAlt
	}
	return inicio, fim
}

type LoginRequest struct {
	CPF   string `json:"cpf"`
	Senha string `json:"senha"`
}

type AlunosRequest struct {
	NomeAba      string `json:"nomeAba"`
	NumeroOnibus string `json:"numeroOnibus"`
}

type IdentifyRequest struct {
	Embedding []float32 `json:"embedding"`
}

// BatchRequest is the fan-out envelope: each item is an independent
// action request processed in order, each with its own error boundary.
type BatchRequest struct {
	Requests []json.RawMessage `json:"requests"`
}

type BatchItemResponse struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}
