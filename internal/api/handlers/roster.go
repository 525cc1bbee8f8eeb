package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/recordstore"
	"github.com/your-org/embarque/pkg/dto"
)

// login authenticates an operator against the login collection.
func (d *Dispatcher) login(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.LoginRequest](raw)
	if err != nil {
		return respond(false, "Erro no login: "+err.Error(), nil)
	}
	if req.CPF == "" || req.Senha == "" {
		return respond(false, "CPF e senha são obrigatórios", nil)
	}

	rows, err := d.store.ListAll(ctx, models.CollectionLogins)
	if err != nil {
		return respond(false, "Erro no login: "+err.Error(), nil)
	}

	for _, r := range rows {
		if r.String("cpf") != req.CPF {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(r.String("senha")), []byte(req.Senha)) != 1 {
			break
		}
		perfil := strings.ToUpper(r.String("perfil"))
		if perfil == "" {
			perfil = "USUARIO"
		}
		return respond(true, "Login realizado com sucesso", gin.H{
			"user": dto.LoginUser{
				ID:     r.String("id"),
				Nome:   r.String("nome"),
				CPF:    r.String("cpf"),
				Perfil: perfil,
			},
		})
	}
	return respond(false, "CPF ou senha inválidos", nil)
}

// getAllUsers returns the full operator roster so clients can validate
// logins offline. Rows without credentials are skipped.
func (d *Dispatcher) getAllUsers(ctx context.Context) gin.H {
	rows, err := d.store.ListAll(ctx, models.CollectionLogins)
	if err != nil {
		return respond(false, "Erro ao buscar usuários: "+err.Error(), nil)
	}

	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		if r.String("cpf") == "" || r.String("senha") == "" {
			continue
		}
		u, err := recordstore.Decode[models.User](r)
		if err != nil {
			slog.Warn("skipping undecodable user row", "error", err)
			continue
		}
		if u.Perfil == "" {
			u.Perfil = "USUARIO"
		}
		users = append(users, u)
	}
	return respond(true, fmt.Sprintf("%d usuários encontrados", len(users)), gin.H{"data": users})
}

// getAllStudents returns the full student roster.
func (d *Dispatcher) getAllStudents(ctx context.Context) gin.H {
	rows, err := d.store.ListAll(ctx, models.CollectionRoster)
	if err != nil {
		return respond(false, "Erro ao buscar alunos: "+err.Error(), nil)
	}

	students := make([]models.Student, 0, len(rows))
	for _, r := range rows {
		if r.String("cpf") == "" {
			continue
		}
		s, err := recordstore.Decode[models.Student](r)
		if err != nil {
			slog.Warn("skipping undecodable student row", "error", err)
			continue
		}
		if s.TemQR == "" {
			s.TemQR = "NAO"
		}
		if s.FacialStatus == "" {
			s.FacialStatus = "NAO"
		}
		students = append(students, s)
	}
	return respond(true, fmt.Sprintf("%d alunos encontrados", len(students)), gin.H{"data": students})
}

// getAlunos returns roster entries, optionally filtered by bus number.
func (d *Dispatcher) getAlunos(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.AlunosRequest](raw)
	if err != nil {
		return respond(false, "Erro ao buscar alunos: "+err.Error(), nil)
	}

	collection := req.NomeAba
	if collection == "" {
		collection = models.CollectionRoster
	}

	rows, err := d.store.ListAll(ctx, collection)
	if err != nil {
		return respond(false, "Erro ao buscar alunos: "+err.Error(), nil)
	}

	students := make([]models.Student, 0, len(rows))
	for _, r := range rows {
		if r.String("cpf") == "" {
			continue
		}
		if req.NumeroOnibus != "" && r.String("onibus") != req.NumeroOnibus {
			continue
		}
		s, err := recordstore.Decode[models.Student](r)
		if err != nil {
			slog.Warn("skipping undecodable student row", "error", err)
			continue
		}
		students = append(students, s)
	}
	return respond(true, fmt.Sprintf("%d alunos encontrados", len(students)), gin.H{"data": students})
}

// getQuartos returns room assignments. Rows missing the room or the
// person key are malformed and skipped with a log, not an error.
func (d *Dispatcher) getQuartos(ctx context.Context) gin.H {
	rows, err := d.store.ListAll(ctx, models.CollectionRooms)
	if err != nil {
		return respond(false, "Erro ao buscar quartos: "+err.Error(), nil)
	}

	rooms := make([]models.Room, 0, len(rows))
	for _, r := range rows {
		if r.String("quarto") == "" || r.String("cpf") == "" {
			slog.Warn("skipping room row without quarto or cpf")
			continue
		}
		room, err := recordstore.Decode[models.Room](r)
		if err != nil {
			slog.Warn("skipping undecodable room row", "error", err)
			continue
		}
		rooms = append(rooms, room)
	}
	return respond(true, fmt.Sprintf("%d quartos sincronizados", len(rooms)), gin.H{"data": rooms})
}
