package dto

// WSEvent is a WebSocket message carrying one mirrored critical event.
type WSEvent struct {
	Type  string `json:"type"`
	Event any    `json:"event"`
}

// IdentifyMatch is one result of a server-side face identification.
type IdentifyMatch struct {
	CPF   string  `json:"cpf"`
	Nome  string  `json:"nome"`
	Score float32 `json:"score"`
}

// LoginUser is the authenticated operator returned by login.
type LoginUser struct {
	ID     string `json:"id"`
	Nome   string `json:"nome"`
	CPF    string `json:"cpf"`
	Perfil string `json:"perfil"`
}
