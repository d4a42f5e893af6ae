package http

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
)

var errRateLimited = errors.New("rate limit exceeded")

func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidTransition), errors.Is(err, engine.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, engine.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrAuthUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	message := err.Error()

	switch status {
	case http.StatusUnauthorized:
		c.Header("WWW-Authenticate", "Bearer")
	case http.StatusInternalServerError:
		common.GetLoggerWith(common.LoggerNameRestfulServer).
			Error("Request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err))
		message = "internal error"
	}

	c.JSON(status, gin.H{"error": message})
}

func badRequest(c *gin.Context, format string, args ...any) {
	writeError(c, fmt.Errorf("%w: %s", engine.ErrValidation, fmt.Sprintf(format, args...)))
}

// issuesMessage flattens zog issues into one line, fields sorted.
func issuesMessage[M ~map[string][]I, I any](issues M) string {
	fields := make([]string, 0, len(issues))
	for field := range issues {
		if !strings.HasPrefix(field, "$") {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs := common.Mapper(issues[field], func(issue I) string { return fmt.Sprint(issue) })
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, ", ")))
	}
	return strings.Join(parts, "; ")
}
