package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aeo-scorer/backend/logging"
)

// ContextKeyWebsite is set by analysis handlers to the submitted website.
const ContextKeyWebsite = "website"

// saveEvery is how many analysis requests pass between statistics saves
const saveEvery = 100

// StatsMiddleware tracks visitors and analysis requests
func StatsMiddleware(stats *logging.Statistics, log *zap.Logger, analysisPaths ...string) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	tracked := make(map[string]bool, len(analysisPaths))
	for _, p := range analysisPaths {
		tracked[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		stats.TrackVisitor(c.ClientIP())

		c.Next()

		if c.Request.Method != http.MethodPost || !tracked[c.FullPath()] {
			return
		}
		website := c.GetString(ContextKeyWebsite)
		stats.TrackAnalysis(website, time.Since(start), c.Writer.Status() >= http.StatusBadRequest)

		if stats.Requests()%saveEvery == 0 {
			go func() {
				if err := stats.Save(); err != nil {
					log.Warn("save statistics failed", zap.Error(err))
				}
			}()
		}
	}
}
