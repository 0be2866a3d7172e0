package api

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/notification"
	"github.com/katatrina/taskhub-BE/internal/preference"
	"github.com/katatrina/taskhub-BE/internal/registry"
	"github.com/katatrina/taskhub-BE/internal/tasktracking"
	"github.com/katatrina/taskhub-BE/internal/token"
	"github.com/katatrina/taskhub-BE/internal/util"
	"github.com/katatrina/taskhub-BE/internal/worker"
	"github.com/rs/zerolog/log"
)

type Server struct {
	router        *gin.Engine
	config        util.Config
	dbStore       db.Store
	tokenMaker    token.Maker
	preferences   *preference.Store
	notifier      *notification.Service
	detector      *tasktracking.Detector
	registry      *registry.Registry
	taskInspector worker.TaskInspector
	upgrader      websocket.Upgrader
}

// NewServer creates a new HTTP server and set up routing. taskInspector may be nil when
// no queue is configured.
func NewServer(config util.Config, store db.Store, connRegistry *registry.Registry, notifier *notification.Service, taskInspector worker.TaskInspector) (*Server, error) {
	// Create a new JWT token maker
	tokenMaker, err := token.NewJWTMaker(config.TokenSecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token maker: %w", err)
	}
	log.Info().Msg("Token maker created successfully ✅")

	server := &Server{
		config:        config,
		dbStore:       store,
		tokenMaker:    tokenMaker,
		preferences:   preference.NewStore(store),
		notifier:      notifier,
		detector:      tasktracking.NewDetector(store, notifier),
		registry:      connRegistry,
		taskInspector: taskInspector,
	}
	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     server.checkOrigin,
	}

	server.setupRouter()
	return server, nil
}

// checkOrigin accepts non-browser clients, which send no Origin, and the configured origins.
func (server *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(server.config.AllowedOrigins, origin)
}

// setupRouter configures the HTTP server routes.
func (server *Server) setupRouter() {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	router.GET("/health", server.health)

	v1 := router.Group("/v1")

	v1.POST("/tokens/verify", server.verifyAccessToken)

	// The websocket handshake authenticates itself so browsers can pass the token as a query parameter.
	v1.GET("/ws/organizations/:organizationID", server.serveWebsocket)

	authGroup := v1.Group("", authMiddleware(server.tokenMaker))
	{
		authGroup.GET("/notifications", server.listNotifications)
		authGroup.POST("/notifications/mark-read", server.markNotificationsRead)
		authGroup.GET("/notifications/counts", server.getNotificationCounts)

		authGroup.GET("/notification-preferences", server.getNotificationPreferences)
		authGroup.PATCH("/notification-preferences", server.updateNotificationPreferences)
	}

	internalGroup := v1.Group("/internal", internalKeyMiddleware(server.config.InternalAPIKey))
	{
		internalGroup.POST("/users/:userID/created", server.handleUserCreated)
		internalGroup.POST("/task-changes", server.handleTaskChange)
		internalGroup.POST("/tasks/:taskID/events", server.handleTaskEvent)
	}

	server.router = router
}

// Handler returns the router so the caller can serve it with its own http.Server.
func (server *Server) Handler() http.Handler {
	return server.router
}
