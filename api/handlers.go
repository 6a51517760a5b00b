package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aeo-scorer/backend/analyzer"
	"github.com/aeo-scorer/backend/middleware"
	"github.com/aeo-scorer/backend/models"
	"github.com/aeo-scorer/backend/stats"
	"github.com/aeo-scorer/backend/usage"
)

const defaultCompetitorLimit = 10

type analyzeRequest struct {
	Website  string   `json:"website" binding:"required"`
	Keywords []string `json:"keywords"`
	ModelKey string   `json:"modelKey"`
}

type aeoRequest struct {
	Website   string          `json:"website" binding:"required"`
	Prompts   []models.Prompt `json:"prompts" binding:"required"`
	BrandName string          `json:"brandName"`
	Providers []string        `json:"providers"`
}

// aeoResponse is an AEO analysis with its derived competitor table.
type aeoResponse struct {
	*models.AEOAnalysis
	Competitors []models.CompetitorCount `json:"competitors"`
}

func withCompetitors(a *models.AEOAnalysis) aeoResponse {
	return aeoResponse{AEOAnalysis: a, Competitors: a.Competitors()}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "website is required")
		return
	}
	c.Set(middleware.ContextKeyWebsite, req.Website)

	result, err := s.analyzer.AnalyzeWebsite(c.Request.Context(), req.Website, req.Keywords, identity(c), req.ModelKey)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.SaveAnalysis(c.Request.Context(), result); err != nil {
		s.log.Error("save analysis failed", zap.String("id", result.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) analyzeAEO(c *gin.Context) {
	var req aeoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "website and prompts are required")
		return
	}
	c.Set(middleware.ContextKeyWebsite, req.Website)

	result, err := s.analyzer.AnalyzeAEO(c.Request.Context(), analyzer.AEORequest{
		Website:   req.Website,
		Prompts:   req.Prompts,
		BrandName: req.BrandName,
		Identity:  identity(c),
		Providers: req.Providers,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.SaveAEO(c.Request.Context(), result); err != nil {
		s.log.Error("save aeo analysis failed", zap.String("id", result.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, withCompetitors(result))
}

func (s *Server) listAnalyses(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	id := identity(c)
	records, err := s.store.ListAnalyses(c.Request.Context(), id.UserID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) getAnalysis(c *gin.Context) {
	result, err := s.store.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !canRead(identity(c), result.UserID) {
		middleware.Abort(c, http.StatusNotFound, "analysis not found")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) loadAEO(c *gin.Context) (*models.AEOAnalysis, bool) {
	result, err := s.store.GetAEO(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	if !canRead(identity(c), result.UserID) {
		middleware.Abort(c, http.StatusNotFound, "analysis not found")
		return nil, false
	}
	return result, true
}

func (s *Server) getAEO(c *gin.Context) {
	if result, ok := s.loadAEO(c); ok {
		c.JSON(http.StatusOK, withCompetitors(result))
	}
}

func (s *Server) getCompetitors(c *gin.Context) {
	result, ok := s.loadAEO(c)
	if !ok {
		return
	}
	limit := defaultCompetitorLimit
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  models.TopCompetitors(result.CitationResults, limit),
		"total": len(result.Competitors()),
	})
}

func (s *Server) usage(c *gin.Context) {
	id := identity(c)
	plan := s.plans.Lookup(id.Plan)
	rec, err := s.policy.Usage(c.Request.Context(), id.UserID, plan)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"usage":  rec,
		"plan":   plan,
		"bypass": usage.Bypass(id, plan),
	})
}

func (s *Server) statistics(c *gin.Context) {
	out := gin.H{}
	if s.traffic != nil {
		out["traffic"] = s.traffic.GetStatistics()
	}
	if ledger := s.analyzer.GetStats(); ledger != nil {
		out["ledger"] = ledger.GetCurrentStats()
	} else {
		out["ledger"] = stats.MonthlyStats{}
	}
	c.JSON(http.StatusOK, out)
}
