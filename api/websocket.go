package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/katatrina/taskhub-BE/internal/event"
	"github.com/katatrina/taskhub-BE/internal/registry"
	"github.com/katatrina/taskhub-BE/internal/util"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 4096
	sendQueueSize    = 64
	commandQueueSize = 16
	cleanupTimeout   = 5 * time.Second
)

const (
	messageMarkNotificationsRead = "mark_notifications_read"
	messageJoinProject           = "join_project"
	messageLeaveProject          = "leave_project"

	frameConnected     = "connected"
	frameJoinedProject = "joined_project"
	frameLeftProject   = "left_project"
	frameMarkedRead    = "notifications_marked_read"
	frameError         = "error"
)

var messageValidator = validator.New(validator.WithRequiredStructEnabled())

// clientMessage is a command sent by the browser over the socket.
type clientMessage struct {
	Type            string      `json:"type" validate:"required,oneof=mark_notifications_read join_project leave_project"`
	NotificationIDs []uuid.UUID `json:"notification_ids" validate:"required_if=Type mark_notifications_read,max=100"`
	ProjectID       int64       `json:"project_id" validate:"required_unless=Type mark_notifications_read,gte=0"`
}

// wsConn is one websocket connection as seen by the registry and the bus. Only the writer
// goroutine writes data frames; everything else goes through the send queue.
type wsConn struct {
	id     string
	userID int64
	ws     *websocket.Conn

	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	writerDone chan struct{}
}

func newWSConn(id string, userID int64, ws *websocket.Conn) *wsConn {
	return &wsConn{
		id:     id,
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) UserID() int64 {
	return c.userID
}

// Deliver queues an event for the writer. Events addressed to another user are dropped.
func (c *wsConn) Deliver(ev event.Event) error {
	if ev.RecipientID != 0 && ev.RecipientID != c.userID {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.id).Str("type", ev.Type).Msg("failed to encode event")
		return nil
	}
	return c.enqueue(data)
}

func (c *wsConn) enqueue(data []byte) error {
	select {
	case <-c.done:
		return event.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return event.ErrSlowConsumer
	}
}

func (c *wsConn) sendFrame(frame gin.H) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.id).Msg("failed to encode frame")
		return
	}
	if err := c.enqueue(data); err != nil {
		log.Debug().Err(err).Str("connection_id", c.id).Msg("dropped frame")
	}
}

func (c *wsConn) sendError(message string) {
	c.sendFrame(gin.H{"type": frameError, "error": message})
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// closeWith sends a close frame and closes the socket. It is only used before the writer starts.
func (c *wsConn) closeWith(code int, reason string) {
	c.Close()
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		log.Debug().Err(err).Str("connection_id", c.id).Msg("failed to write close frame")
	}
	c.ws.Close()
}

// writePump drains the send queue and keeps the connection alive with pings. It returns
// when the connection is closed or a write fails.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.ws.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("websocket ping failed")
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

type websocketURI struct {
	OrganizationID int64 `uri:"organizationID" binding:"required,min=1"`
}

type websocketQuery struct {
	ProjectID *int64 `form:"project_id" binding:"omitempty,min=1"`
	Token     string `form:"token"`
}

// serveWebsocket authenticates the handshake, upgrades it and runs the connection until it ends.
func (server *Server) serveWebsocket(ctx *gin.Context) {
	uri := new(websocketURI)
	if err := ctx.ShouldBindUri(uri); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	query := new(websocketQuery)
	if err := ctx.ShouldBindQuery(query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	accessToken := query.Token
	if accessToken == "" {
		var err error
		if accessToken, err = bearerToken(ctx.GetHeader(authorizationHeaderKey)); err != nil {
			ctx.JSON(http.StatusUnauthorized, errorResponse(err))
			return
		}
	}

	payload, err := server.tokenMaker.VerifyToken(accessToken)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(err))
		return
	}
	userID, err := payload.UserID()
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(err))
		return
	}

	ws, err := server.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	session := &wsSession{
		server:         server,
		conn:           newWSConn(util.NewConnectionID(), userID, ws),
		organizationID: uri.OrganizationID,
	}
	session.run(ctx.Request.Context(), query.ProjectID)
}

// wsSession is the lifetime of one connection. primaryProject is owned by the command goroutine once it starts.
type wsSession struct {
	server         *Server
	conn           *wsConn
	organizationID int64
	primaryProject *int64
}

type command struct {
	message *clientMessage
}

// run joins the organization group, registers the connection and serves it until the
// client goes away. Cleanup runs on every exit path once the socket is upgraded.
func (s *wsSession) run(parent context.Context, projectID *int64) {
	ctx, cancel := context.WithCancel(parent)
	commands := make(chan command, commandQueueSize)
	var wg sync.WaitGroup

	defer func() {
		cancel()
		close(commands)
		// a late join_project must not re-add the connection after it was deregistered
		wg.Wait()

		cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancelCleanup()
		if err := s.server.registry.Deregister(cleanupCtx, s.conn.id); err != nil {
			log.Error().Err(err).Str("connection_id", s.conn.id).Msg("failed to deregister connection")
		}

		s.conn.Close()
		if s.conn.writerDone != nil {
			<-s.conn.writerDone
		}
		s.conn.ws.Close()

		log.Info().Str("connection_id", s.conn.id).Int64("user_id", s.conn.userID).Msg("websocket disconnected")
	}()

	if err := s.server.registry.JoinOrganization(ctx, s.conn, s.organizationID); err != nil {
		if errors.Is(err, registry.ErrAccessDenied) {
			log.Warn().Int64("user_id", s.conn.userID).Int64("organization_id", s.organizationID).Msg("websocket access denied")
			s.conn.closeWith(websocket.ClosePolicyViolation, "access denied")
			return
		}
		log.Error().Err(err).Int64("organization_id", s.organizationID).Msg("failed to join organization group")
		s.conn.closeWith(websocket.CloseInternalServerErr, "internal error")
		return
	}

	if projectID != nil {
		if err := s.server.registry.JoinProject(ctx, s.conn, *projectID); err != nil {
			log.Warn().Err(err).Int64("project_id", *projectID).Str("connection_id", s.conn.id).Msg("skipping project join")
			s.conn.sendError("cannot join project")
		} else {
			s.primaryProject = projectID
		}
	}

	if err := s.server.registry.Register(ctx, s.conn, s.organizationID, s.primaryProject); err != nil {
		log.Error().Err(err).Str("connection_id", s.conn.id).Msg("failed to register connection")
		s.conn.closeWith(websocket.CloseInternalServerErr, "internal error")
		return
	}

	s.conn.sendFrame(gin.H{
		"type":            frameConnected,
		"connection_id":   s.conn.id,
		"organization_id": s.organizationID,
		"project_id":      s.primaryProject,
	})
	if s.primaryProject != nil {
		s.conn.sendFrame(gin.H{"type": frameJoinedProject, "project_id": *s.primaryProject})
	}

	log.Info().Str("connection_id", s.conn.id).Int64("user_id", s.conn.userID).
		Int64("organization_id", s.organizationID).Msg("websocket connected")

	s.conn.writerDone = make(chan struct{})
	go s.conn.writePump()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runCommands(ctx, commands)
	}()

	s.readPump(commands)
}

// submit hands a command to the command goroutine without blocking the reader.
func submit(commands chan<- command, cmd command) bool {
	select {
	case commands <- cmd:
		return true
	default:
		return false
	}
}

// readPump reads client messages until the socket fails. Database work is handed to the
// command goroutine so a slow query never delays pong handling.
func (s *wsSession) readPump(commands chan<- command) {
	limiter := rate.NewLimiter(rate.Limit(s.server.config.WSMessageRate), s.server.config.WSMessageBurst)

	s.conn.ws.SetReadLimit(maxMessageSize)
	_ = s.conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.ws.SetPongHandler(func(string) error {
		_ = s.conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		submit(commands, command{})
		return nil
	})

	for {
		_, data, err := s.conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", s.conn.id).Msg("websocket closed unexpectedly")
			}
			return
		}
		_ = s.conn.ws.SetReadDeadline(time.Now().Add(pongWait))

		if !limiter.Allow() {
			s.conn.sendError("rate limit exceeded")
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.conn.sendError("malformed message")
			continue
		}
		if err := messageValidator.Struct(msg); err != nil {
			s.conn.sendError(err.Error())
			continue
		}

		if !submit(commands, command{message: &msg}) {
			s.conn.sendError("too many pending requests")
		}
	}
}

// runCommands refreshes the liveness row and executes client messages in arrival order.
func (s *wsSession) runCommands(ctx context.Context, commands <-chan command) {
	for cmd := range commands {
		if ctx.Err() != nil {
			continue
		}

		if err := s.server.registry.Touch(ctx, s.conn.id); err != nil {
			log.Warn().Err(err).Str("connection_id", s.conn.id).Msg("failed to refresh connection")
		}

		if cmd.message != nil {
			s.handleMessage(ctx, *cmd.message)
		}
	}
}

func (s *wsSession) handleMessage(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case messageMarkNotificationsRead:
		updated, err := s.server.notifier.MarkRead(ctx, s.conn.userID, msg.NotificationIDs)
		if err != nil {
			log.Error().Err(err).Str("connection_id", s.conn.id).Msg("failed to mark notifications read")
			s.conn.sendError("failed to mark notifications read")
			return
		}
		s.conn.sendFrame(gin.H{"type": frameMarkedRead, "notification_ids": msg.NotificationIDs, "count": updated})

	case messageJoinProject:
		if err := s.server.registry.JoinProject(ctx, s.conn, msg.ProjectID); err != nil {
			if !errors.Is(err, registry.ErrAccessDenied) {
				log.Error().Err(err).Int64("project_id", msg.ProjectID).Msg("failed to join project group")
			}
			s.conn.sendError("cannot join project")
			return
		}
		if s.primaryProject == nil {
			s.setPrimaryProject(ctx, &msg.ProjectID)
		}
		s.conn.sendFrame(gin.H{"type": frameJoinedProject, "project_id": msg.ProjectID})

	case messageLeaveProject:
		s.server.registry.Leave(s.conn.id, registry.ProjectGroup(msg.ProjectID))
		if s.primaryProject != nil && *s.primaryProject == msg.ProjectID {
			s.setPrimaryProject(ctx, nil)
		}
		s.conn.sendFrame(gin.H{"type": frameLeftProject, "project_id": msg.ProjectID})
	}
}

// setPrimaryProject records the project the liveness row points at.
func (s *wsSession) setPrimaryProject(ctx context.Context, projectID *int64) {
	s.primaryProject = projectID
	if err := s.server.registry.Register(ctx, s.conn, s.organizationID, projectID); err != nil {
		log.Warn().Err(err).Str("connection_id", s.conn.id).Msg("failed to update connection project")
	}
}
