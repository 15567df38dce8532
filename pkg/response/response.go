package response

import (
	"errors"
	"fmt"
	"net/http"

	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/ratelimiter"
	"biogy.com/biogyapi/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
	ContextLogger   = "logger"
)

// ParamUUID parses a path parameter as a uuid.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, apperror.ErrInvalidInput)
	}
	return id, nil
}

// BindError renders a request binding failure as a validation error.
func BindError(c *gin.Context, err error) {
	ResponseError(c, apperror.New(http.StatusBadRequest, validator.FormatValidationError(err), apperror.ErrInvalidInput))
}

// ResponseError standardized error response
func ResponseError(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	var rateLimitErr *ratelimiter.RateLimitError
	if errors.As(err, &rateLimitErr) {
		c.Header("Retry-After", fmt.Sprintf("%.0f", rateLimitErr.RetryAfter.Seconds()))
	}

	if code == http.StatusInternalServerError {
		Logger(c).Error("internal error",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		c.JSON(code, gin.H{"error": gin.H{"kind": apperror.KindInternal, "message": "internal server error"}})
		return
	}

	c.JSON(code, gin.H{"error": gin.H{"kind": apperror.Kind(err), "message": err.Error()}})
}

// Logger returns the request-scoped logger set by the logging middleware.
func Logger(c *gin.Context) *zap.Logger {
	if l, ok := c.Get(ContextLogger); ok {
		if logger, ok := l.(*zap.Logger); ok {
			return logger
		}
	}
	return zap.NewNop()
}
