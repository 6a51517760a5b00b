package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aeo-scorer/backend/analyzer"
	"github.com/aeo-scorer/backend/middleware"
	"github.com/aeo-scorer/backend/store"
	"github.com/aeo-scorer/backend/usage"
)

// fail maps err onto a status code and writes the error envelope.
func (s *Server) fail(c *gin.Context, err error) {
	var limit *usage.LimitError
	switch {
	case errors.As(err, &limit):
		if !limit.ResetTime.IsZero() {
			retry := int(math.Ceil(time.Until(limit.ResetTime).Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(retry, 1)))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"ok":        0,
			"code":      http.StatusTooManyRequests,
			"message":   limit.Reason,
			"kind":      limit.Kind,
			"resetTime": limit.ResetTime.UTC(),
		})
	case errors.Is(err, analyzer.ErrInvalidRequest):
		middleware.Abort(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		middleware.Abort(c, http.StatusNotFound, "analysis not found")
	case errors.Is(err, analyzer.ErrCitationCheck):
		s.log.Warn("citation check failed", zap.String("path", c.FullPath()), zap.Error(err))
		middleware.Abort(c, http.StatusBadGateway, err.Error())
	default:
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, "internal error")
	}
}
