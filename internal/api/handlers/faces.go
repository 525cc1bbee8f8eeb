package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/embarque/internal/deltasync"
	"github.com/your-org/embarque/internal/facecap"
	"github.com/your-org/embarque/internal/models"
	"github.com/your-org/embarque/internal/photostore"
	"github.com/your-org/embarque/internal/recordstore"
)

// FaceHandler registers a person's biometrics from an uploaded photo:
// capture the embedding, archive the photo, update the person row and
// the similarity index. Unlike the action endpoint this is a plain REST
// surface and uses HTTP status codes.
type FaceHandler struct {
	store        recordstore.Store
	searcher     recordstore.EmbeddingSearcher
	photos       *photostore.Store
	capturer     facecap.Capturer
	embeddingDim int
}

func NewFaceHandler(store recordstore.Store, searcher recordstore.EmbeddingSearcher,
	photos *photostore.Store, capturer facecap.Capturer, embeddingDim int) *FaceHandler {
	return &FaceHandler{
		store:        store,
		searcher:     searcher,
		photos:       photos,
		capturer:     capturer,
		embeddingDim: embeddingDim,
	}
}

// RegisterPhoto handles POST /v1/pessoas/:cpf/foto.
func (h *FaceHandler) RegisterPhoto(c *gin.Context) {
	if h.capturer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face capture not configured"})
		return
	}

	cpf := c.Param("cpf")
	person, err := h.store.FindByKey(c.Request.Context(), models.CollectionPeople, "cpf", cpf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	file, header, err := c.Request.FormFile("foto")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": facecap.ErrNoFile.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read upload: " + err.Error()})
		return
	}

	tmp, err := os.CreateTemp("", "foto-*"+filepath.Ext(header.Filename))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	tmp.Close()

	result, err := h.capturer.Extract(c.Request.Context(), tmp.Name())
	if err != nil {
		switch {
		case errors.Is(err, facecap.ErrDecodeFailure),
			errors.Is(err, facecap.ErrNoFaceDetected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": facecap.ErrDetectionError.Error()})
		}
		return
	}

	key := "fotos/" + cpf + "/" + uuid.New().String() + "_" + filepath.Base(header.Filename)
	if h.photos != nil {
		if err := h.photos.PutPhoto(c.Request.Context(), key, data, header.Header.Get("Content-Type")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	patch := recordstore.Row{"embedding": result.Embedding}
	deltasync.Stamp(patch, "")
	if _, err := h.store.UpsertByKey(c.Request.Context(), models.CollectionPeople, "cpf", cpf, patch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.searcher != nil && len(result.Embedding) == h.embeddingDim {
		if err := h.searcher.IndexEmbedding(c.Request.Context(), cpf, result.Embedding); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"cpf":          cpf,
		"photo_key":    key,
		"bounding_box": result.BoundingBox,
	})
}

// PurgePhotos handles DELETE /v1/pessoas/:cpf/fotos: every archived
// photo for the person is removed. Serves data-removal requests; the
// embedding on the person row is untouched.
func (h *FaceHandler) PurgePhotos(c *gin.Context) {
	if h.photos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage not configured"})
		return
	}
	cpf := c.Param("cpf")
	if err := h.photos.DeletePrefix(c.Request.Context(), "fotos/"+cpf+"/"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cpf": cpf, "status": "removed"})
}

// Photo handles GET /v1/fotos?key=... and streams an archived photo.
func (h *FaceHandler) Photo(c *gin.Context) {
	if h.photos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage not configured"})
		return
	}
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	data, err := h.photos.GetPhoto(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
