package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/katatrina/taskhub-BE/internal/preference"
	"github.com/rs/zerolog/log"
)

func (server *Server) getNotificationPreferences(ctx *gin.Context) {
	userID := authUserID(ctx)

	prefs, err := server.preferences.GetOrCreate(ctx.Request.Context(), userID)
	if err != nil {
		log.Err(err).Int64("user_id", userID).Msg("failed to get notification preferences")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, prefs)
}

func (server *Server) updateNotificationPreferences(ctx *gin.Context) {
	userID := authUserID(ctx)

	var fields map[string]any
	if err := ctx.ShouldBindJSON(&fields); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	prefs, err := server.preferences.Update(ctx.Request.Context(), userID, fields)
	if err != nil {
		var validationErr *preference.ValidationError
		switch {
		case errors.As(err, &validationErr):
			violations := []*FieldViolation{fieldViolation(validationErr.Field, validationErr.Err)}
			ctx.JSON(http.StatusUnprocessableEntity, failedValidationError(violations))
		case errors.Is(err, preference.ErrNoFields):
			violations := []*FieldViolation{fieldViolation("body", err)}
			ctx.JSON(http.StatusUnprocessableEntity, failedValidationError(violations))
		default:
			log.Err(err).Int64("user_id", userID).Msg("failed to update notification preferences")
			ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		}
		return
	}

	ctx.JSON(http.StatusOK, prefs)
}
