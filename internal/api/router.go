package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/embarque/internal/api/handlers"
	"github.com/your-org/embarque/internal/api/ws"
	"github.com/your-org/embarque/internal/auth"
)

type RouterConfig struct {
	APIKey     string
	Dispatcher *handlers.Dispatcher
	Faces      *handlers.FaceHandler
	System     *handlers.SystemHandler
	Hub        *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	r.GET("/healthz", cfg.System.Healthz)
	r.GET("/readyz", cfg.System.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket push mirror
	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Action endpoint: the clients speak one route with a named action.
	// GET is kept for clients that cannot send a body.
	v1.POST("/sync", cfg.Dispatcher.HandleSync)
	v1.GET("/sync", cfg.Dispatcher.HandleSync)

	// Facial registration (photo upload path)
	if cfg.Faces != nil {
		v1.POST("/pessoas/:cpf/foto", cfg.Faces.RegisterPhoto)
		v1.DELETE("/pessoas/:cpf/fotos", cfg.Faces.PurgePhotos)
		v1.GET("/fotos", cfg.Faces.Photo)
	}

	return r
}
