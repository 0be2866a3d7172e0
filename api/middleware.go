package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/katatrina/taskhub-BE/internal/token"
	"github.com/rs/zerolog/log"
)

const (
	authorizationHeaderKey  = "Authorization"
	authorizationTypeBearer = "Bearer"
	authorizationPayloadKey = "authPayload"
	authorizedUserIDKey     = "authUserID"
	internalKeyHeader       = "X-Internal-Key"
)

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is not provided")
	}

	fields := strings.Fields(header)
	if len(fields) != 2 {
		return "", errors.New("invalid authorization header format")
	}

	if fields[0] != authorizationTypeBearer {
		return "", errors.New("unsupported authorization header type")
	}

	return fields[1], nil
}

// authMiddleware authenticates the user.
func authMiddleware(tokenMaker token.Maker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		accessToken, err := bearerToken(ctx.GetHeader(authorizationHeaderKey))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		payload, err := tokenMaker.VerifyToken(accessToken)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		userID, err := payload.UserID()
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		ctx.Set(authorizationPayloadKey, payload)
		ctx.Set(authorizedUserIDKey, userID)
		ctx.Next()
	}
}

func authUserID(ctx *gin.Context) int64 {
	return ctx.MustGet(authorizedUserIDKey).(int64)
}

// internalKeyMiddleware guards the routes called by the task service.
func internalKeyMiddleware(key string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		provided := ctx.GetHeader(internalKeyHeader)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(ErrInvalidInternalKey))
			return
		}
		ctx.Next()
	}
}

// requestLogger logs every request through zerolog.
func requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()
		logger := log.Info()
		if status >= http.StatusInternalServerError {
			logger = log.Error()
		}

		logger.Str("method", ctx.Request.Method).
			Str("path", ctx.FullPath()).
			Int("status_code", status).
			Dur("duration", time.Since(start)).
			Msg("received an HTTP request")
	}
}
