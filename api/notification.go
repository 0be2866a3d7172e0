package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/katatrina/taskhub-BE/internal/notification"
	"github.com/rs/zerolog/log"
)

type listNotificationsRequest struct {
	OrganizationID *int64 `form:"organization" binding:"omitempty,min=1"`
	ProjectID      *int64 `form:"project" binding:"omitempty,min=1"`
	UnreadOnly     bool   `form:"unread_only"`
	Limit          int    `form:"limit,default=20" binding:"min=1,max=100"`
	Offset         int    `form:"offset" binding:"min=0"`
}

func (server *Server) listNotifications(ctx *gin.Context) {
	req := new(listNotificationsRequest)

	if err := ctx.ShouldBindQuery(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	filter := notification.Filter{
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
		UnreadOnly:     req.UnreadOnly,
	}

	notifications, err := server.notifier.List(ctx.Request.Context(), authUserID(ctx), filter, req.Limit, req.Offset)
	if err != nil {
		log.Err(err).Msg("failed to list notifications")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, notifications)
}

type markNotificationsReadRequest struct {
	NotificationIDs []uuid.UUID `json:"notification_ids" binding:"required,max=500"`
}

type markNotificationsReadResponse struct {
	MarkedRead int64 `json:"marked_read"`
}

func (server *Server) markNotificationsRead(ctx *gin.Context) {
	req := new(markNotificationsReadRequest)

	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	if len(req.NotificationIDs) == 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse(ErrEmptyNotificationIDs))
		return
	}

	updated, err := server.notifier.MarkRead(ctx.Request.Context(), authUserID(ctx), req.NotificationIDs)
	if err != nil {
		log.Err(err).Msg("failed to mark notifications read")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, markNotificationsReadResponse{MarkedRead: updated})
}

type getNotificationCountsRequest struct {
	OrganizationID *int64 `form:"organization" binding:"omitempty,min=1"`
	ProjectID      *int64 `form:"project" binding:"omitempty,min=1"`
}

type getNotificationCountsResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

func (server *Server) getNotificationCounts(ctx *gin.Context) {
	req := new(getNotificationCountsRequest)

	if err := ctx.ShouldBindQuery(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	count, err := server.notifier.UnreadCount(ctx.Request.Context(), authUserID(ctx), notification.Filter{
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
	})
	if err != nil {
		log.Err(err).Msg("failed to count unread notifications")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, getNotificationCountsResponse{UnreadCount: count})
}

// notificationErrorStatus maps a notification service error to a response status.
// Persistence failures are retryable by the caller.
func notificationErrorStatus(err error) int {
	switch {
	case errors.Is(err, notification.ErrInvalidType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, notification.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
