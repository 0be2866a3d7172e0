package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/notification"
	"github.com/katatrina/taskhub-BE/internal/tasktracking"
	"github.com/katatrina/taskhub-BE/internal/worker"
	"github.com/rs/zerolog/log"
)

type userURI struct {
	UserID int64 `uri:"userID" binding:"required,min=1"`
}

// handleUserCreated is the user-creation hook: it makes sure the new user has a preference row.
func (server *Server) handleUserCreated(ctx *gin.Context) {
	params := new(userURI)

	if err := ctx.ShouldBindUri(params); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	prefs, err := server.preferences.GetOrCreate(ctx.Request.Context(), params.UserID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			ctx.JSON(http.StatusNotFound, errorResponse(fmt.Errorf("user %d not found", params.UserID)))
			return
		}

		log.Err(err).Int64("user_id", params.UserID).Msg("failed to create notification preferences")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, prefs)
}

type taskChangeRequest struct {
	Before  *tasktracking.Image `json:"before"`
	After   tasktracking.Image  `json:"after"`
	ActorID *int64              `json:"actor_id" binding:"omitempty,min=1"`
}

type createdNotificationsResponse struct {
	Notifications []db.Notification `json:"notifications"`
}

// handleTaskChange runs the change detector on a before and after pair sent by the task service.
func (server *Server) handleTaskChange(ctx *gin.Context) {
	req := new(taskChangeRequest)

	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	created, err := server.detector.Apply(ctx.Request.Context(), tasktracking.Mutation{
		Before:  req.Before,
		After:   req.After,
		ActorID: req.ActorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, tasktracking.ErrTaskMismatch):
			ctx.JSON(http.StatusBadRequest, errorResponse(err))
		case errors.Is(err, db.ErrRecordNotFound):
			ctx.JSON(http.StatusNotFound, errorResponse(fmt.Errorf("task %d not found", req.After.TaskID)))
		default:
			log.Err(err).Int64("task_id", req.After.TaskID).Msg("failed to apply task change")
			ctx.JSON(notificationErrorStatus(err), errorResponse(err))
		}
		return
	}

	if created == nil {
		created = []db.Notification{}
	}
	ctx.JSON(http.StatusOK, createdNotificationsResponse{Notifications: created})
}

type taskURI struct {
	TaskID int64 `uri:"taskID" binding:"required,min=1"`
}

type taskEventRequest struct {
	Type     db.NotificationType `json:"type" binding:"required"`
	SenderID *int64              `json:"sender_id" binding:"omitempty,min=1"`
	Message  string              `json:"message" binding:"max=1000"`
}

// handleTaskEvent fires one notification event explicitly. Task creation events are only sent this way.
func (server *Server) handleTaskEvent(ctx *gin.Context) {
	params := new(taskURI)
	if err := ctx.ShouldBindUri(params); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	req := new(taskEventRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	if !req.Type.Valid() {
		violations := []*FieldViolation{fieldViolation("type", fmt.Errorf("%w: %q", notification.ErrInvalidType, req.Type))}
		ctx.JSON(http.StatusUnprocessableEntity, failedValidationError(violations))
		return
	}

	task, err := server.dbStore.GetTaskScope(ctx.Request.Context(), params.TaskID)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, errorResponse(fmt.Errorf("task %d not found", params.TaskID)))
			return
		}

		log.Err(err).Int64("task_id", params.TaskID).Msg("failed to get task")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	created, err := server.notifier.NotifyTaskEvent(ctx.Request.Context(), notification.TaskEvent{
		Task:     task,
		Type:     req.Type,
		SenderID: req.SenderID,
		Message:  req.Message,
	})
	if err != nil {
		log.Err(err).Int64("task_id", task.ID).Msg("failed to notify task event")
		ctx.JSON(notificationErrorStatus(err), errorResponse(err))
		return
	}

	if created == nil {
		created = []db.Notification{}
	}
	ctx.JSON(http.StatusCreated, createdNotificationsResponse{Notifications: created})
}

type healthResponse struct {
	Status      string             `json:"status"`
	Database    string             `json:"database"`
	Connections int                `json:"connections"`
	DigestQueue *worker.QueueStats `json:"digest_queue,omitempty"`
}

func (server *Server) health(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Database:    "ok",
		Connections: server.registry.Len(),
	}

	if err := server.dbStore.Ping(pingCtx); err != nil {
		log.Err(err).Msg("database health check failed")
		resp.Status = "degraded"
		resp.Database = "unavailable"
	}

	if server.taskInspector != nil {
		stats, err := server.taskInspector.QueueStats(pingCtx, worker.QueueDefault)
		if err != nil {
			log.Err(err).Msg("queue health check failed")
			resp.Status = "degraded"
		} else {
			resp.DigestQueue = &stats
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, resp)
}
