package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/embarque/internal/deltasync"
	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/observability"
	"github.com/your-org/embarque/internal/recordstore"
	"github.com/your-org/embarque/pkg/dto"
)

// getAllPeople returns registered people changed since the client's
// cursor. Rows without a complete embedding are skipped: the clients
// consume this listing for on-device recognition and cannot use a
// person without biometric data.
func (d *Dispatcher) getAllPeople(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.SinceRequest](raw)
	if err != nil {
		return respond(false, "Erro ao buscar pessoas: "+err.Error(), nil)
	}

	rows, err := d.index.ChangedSince(ctx, models.CollectionPeople, req.Since)
	if err != nil {
		return respond(false, "Erro ao buscar pessoas: "+err.Error(), nil)
	}

	people := make([]models.Person, 0, len(rows))
	for _, r := range rows {
		p, err := recordstore.Decode[models.Person](r)
		if err != nil {
			slog.Warn("skipping undecodable person row", "error", err)
			continue
		}
		if !p.HasValidEmbedding(d.embeddingDim) {
			slog.Warn("person without valid embedding excluded from sync", "cpf", p.CPF)
			continue
		}
		people = append(people, p)
	}
	observability.SyncRowsReturned.WithLabelValues(models.CollectionPeople).Add(float64(len(people)))

	msg := fmt.Sprintf("%d pessoas encontradas", len(people))
	if req.Since != "" {
		msg = fmt.Sprintf("%d pessoas modificadas desde %s", len(people), req.Since)
	}
	return respond(true, msg, gin.H{"data": people})
}

// addPessoa creates or updates a person keyed by CPF. Repeat sends of
// the same payload converge on one row; only the fields present are
// overwritten, so a later partial update cannot erase the embedding.
func (d *Dispatcher) addPessoa(ctx context.Context, raw json.RawMessage) gin.H {
	req, err := decode[dto.PersonRequest](raw)
	if err != nil {
		return respond(false, "Erro ao salvar pessoa: "+err.Error(), nil)
	}
	if req.CPF == "" || req.Nome == "" || len(req.Embedding) == 0 {
		return respond(false, "Dados incompletos: cpf, nome e embedding são obrigatórios", nil)
	}

	patch := recordstore.Row{
		"cpf":           req.CPF,
		"colegio":       req.Colegio,
		"turma":         req.Turma,
		"nome":          req.Nome,
		"email":         req.Email,
		"telefone":      req.Telefone,
		"embedding":     req.Embedding,
		"data_cadastro": deltasync.Now(),
	}
	if req.Movimentacao != "" {
		patch["movimentacao"] = strings.ToUpper(strings.TrimSpace(req.Movimentacao))
	}
	inicio, fim := req.Window()
	if inicio != "" {
		patch["inicio_viagem"] = inicio
	}
	if fim != "" {
		patch["fim_viagem"] = fim
	}
	deltasync.Stamp(patch, req.UpdatedAt)

	created, err := d.store.UpsertByKey(ctx, models.CollectionPeople, "cpf", req.CPF, patch)
	if err != nil {
		return respond(false, "Erro ao salvar pessoa: "+err.Error(), nil)
	}

	// The similarity index is derived data; a failed refresh degrades
	// identificarPessoa but never the registration itself.
	if d.searcher != nil && len(req.Embedding) == d.embeddingDim {
		if err := d.searcher.IndexEmbedding(ctx, req.CPF, req.Embedding); err != nil {
			slog.Warn("embedding index refresh failed", "cpf", req.CPF, "error", err)
		}
	}

	msg := "Pessoa atualizada com sucesso"
	if created {
		msg = "Pessoa cadastrada com sucesso"
	}
	return respond(true, msg, gin.H{"cpf": req.CPF})
}

// identificarPessoa runs a server-side nearest-neighbour search over
// the registered embeddings for clients without on-device matching.
func (d *Dispatcher) identificarPessoa(ctx context.Context, raw json.RawMessage) gin.H {
	if d.searcher == nil {
		return respond(false, "Busca por similaridade indisponível", nil)
	}
	req, err := decode[dto.IdentifyRequest](raw)
	if err != nil {
		return respond(false, "Erro ao identificar pessoa: "+err.Error(), nil)
	}
	if len(req.Embedding) != d.embeddingDim {
		return respond(false, fmt.Sprintf("Embedding inválido: esperado %d dimensões, recebido %d",
			d.embeddingDim, len(req.Embedding)), nil)
	}

	matches, err := d.searcher.SearchEmbeddings(ctx, req.Embedding, d.identifyThreshold, d.identifyLimit)
	if err != nil {
		return respond(false, "Erro ao identificar pessoa: "+err.Error(), nil)
	}

	results := make([]dto.IdentifyMatch, 0, len(matches))
	for _, m := range matches {
		out := dto.IdentifyMatch{CPF: m.CPF, Score: m.Score}
		if row, err := d.store.FindByKey(ctx, models.CollectionPeople, "cpf", m.CPF); err == nil && row != nil {
			out.Nome = row.String("nome")
		}
		results = append(results, out)
	}

	if len(results) == 0 {
		return respond(true, "Nenhuma pessoa reconhecida", gin.H{"resultados": results, "total": 0})
	}
	return respond(true, fmt.Sprintf("%d pessoa(s) reconhecida(s)", len(results)), gin.H{
		"resultados": results,
		"total":      len(results),
	})
}
