package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aeo-scorer/backend/analyzer"
	"github.com/aeo-scorer/backend/logging"
	"github.com/aeo-scorer/backend/middleware"
	"github.com/aeo-scorer/backend/models"
	"github.com/aeo-scorer/backend/stats"
	"github.com/aeo-scorer/backend/store"
	"github.com/aeo-scorer/backend/usage"
)

// Analyzer runs analyses on behalf of handlers.
type Analyzer interface {
	AnalyzeWebsite(ctx context.Context, website string, keywords []string, identity models.Identity, modelKey string) (*models.Analysis, error)
	AnalyzeAEO(ctx context.Context, req analyzer.AEORequest) (*models.AEOAnalysis, error)
	GetStats() *stats.Storage
}

// Store persists analysis results.
type Store interface {
	SaveAnalysis(ctx context.Context, a *models.Analysis) error
	GetAnalysis(ctx context.Context, id string) (*models.Analysis, error)
	SaveAEO(ctx context.Context, a *models.AEOAnalysis) error
	GetAEO(ctx context.Context, id string) (*models.AEOAnalysis, error)
	ListAnalyses(ctx context.Context, userID string, limit int) ([]store.Record, error)
}

type Deps struct {
	Analyzer Analyzer
	Store    Store
	Policy   usage.Policy
	Plans    analyzer.PlanLookup
	Traffic  *logging.Statistics
	Logger   *zap.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	analyzer Analyzer
	store    Store
	policy   usage.Policy
	plans    analyzer.PlanLookup
	traffic  *logging.Statistics
	log      *zap.Logger
}

func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		analyzer: deps.Analyzer,
		store:    deps.Store,
		policy:   deps.Policy,
		plans:    deps.Plans,
		traffic:  deps.Traffic,
		log:      log,
	}
}

// AnalysisPaths are the routes counted as analysis requests in traffic statistics.
var AnalysisPaths = []string{"/api/analyze", "/api/aeo"}

// Register mounts every route on r. auth guards everything except health.
func (s *Server) Register(r gin.IRouter, auth gin.HandlerFunc) {
	api := r.Group("/api")
	api.GET("/health", s.health)

	authed := api.Group("", auth)
	{
		authed.POST("/analyze", s.analyze)
		authed.POST("/aeo", s.analyzeAEO)
		authed.GET("/analyses", s.listAnalyses)
		authed.GET("/analyses/:id", s.getAnalysis)
		authed.GET("/aeo/:id", s.getAEO)
		authed.GET("/aeo/:id/competitors", s.getCompetitors)
		authed.GET("/usage", s.usage)
		authed.GET("/statistics", s.statistics)
	}
}

func identity(c *gin.Context) models.Identity {
	id, _ := middleware.CurrentIdentity(c)
	return id
}

// canRead reports whether id may see a record owned by owner.
func canRead(id models.Identity, owner string) bool {
	return id.IsAdmin() || id.UserID == owner
}
