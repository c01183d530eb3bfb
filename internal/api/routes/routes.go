package routes

import (
	"time"

	"playsync-service/internal/api/handlers"
	"playsync-service/internal/api/middleware"
	"playsync-service/internal/database"
	"playsync-service/internal/history"
	"playsync-service/internal/session"
	"playsync-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type Router struct {
	engine         *gin.Engine
	wsHandler      *handlers.WSHandler
	sessionHandler *handlers.SessionHandler
	rateLimitMW    *middleware.RateLimitMiddleware
	authMW         *middleware.AuthMiddleware
}

func NewRouter(
	hub *websocket.Hub,
	store *session.Store,
	redisClient *database.RedisClient,
	recorder *history.Recorder,
	jwtSecret string,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogApi())

	return &Router{
		engine:         engine,
		wsHandler:      handlers.NewWSHandler(hub),
		sessionHandler: handlers.NewSessionHandler(store, recorder),
		rateLimitMW:    middleware.NewRateLimitMiddleware(redisClient),
		authMW:         middleware.NewAuthMiddleware(jwtSecret),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.engine.Group("/api/v1")

	// WebSocket endpoint: token auth via query parameter, connection rate
	// limited per user
	api.GET("/ws",
		r.authMW.RequireWSAuth(),
		r.rateLimitMW.WebSocketRateLimit(10, time.Minute),
		r.wsHandler.HandleWebSocket,
	)

	// Read-only session views over REST
	sessions := api.Group("/session")
	sessions.Use(r.authMW.RequireAuth())
	sessions.Use(r.rateLimitMW.RateLimit(100, time.Minute))
	{
		sessions.GET("/devices", r.sessionHandler.GetDevices)
		sessions.GET("/playback", r.sessionHandler.GetPlayback)
		sessions.GET("/history", r.sessionHandler.GetHistory)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
