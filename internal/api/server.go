// Package api exposes the read-only review surface over the decisions
// database: run history, applied decisions, aggregate stats and target
// lookups. It never applies links; writes go through the batch pipeline.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/config"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/storage"
)

// Server serves the review API.
type Server struct {
	repo   storage.Repository
	logger *slog.Logger
}

func NewServer(repo storage.Repository, logger *slog.Logger) *Server {
	return &Server{repo: repo, logger: logger}
}

// DecisionResponse is the wire form of an applied linkage decision.
type DecisionResponse struct {
	ID             int64  `json:"id"`
	IdempotencyKey string `json:"idempotency_key"`
	SourceID       string `json:"source_id"`
	SourceSystem   string `json:"source_system"`
	TargetID       int64  `json:"target_id"`
	TargetTable    string `json:"target_table"`
	Amount         string `json:"amount"`
	Confidence     int    `json:"confidence"`
	Pass           string `json:"pass"`
	RunID          int64  `json:"run_id,omitempty"`
	AppliedAt      string `json:"applied_at"`
}

// TargetResponse is the wire form of a target record.
type TargetResponse struct {
	ID              int64  `json:"id"`
	TargetTable     string `json:"target_table"`
	Amount          string `json:"amount"`
	OccurredOn      string `json:"occurred_on"`
	DescriptiveText string `json:"descriptive_text"`
	ExistingLink    string `json:"existing_link,omitempty"`
}

func (s *Server) getRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}

	runs, err := s.repo.ListRuns(limit)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) getRun(c *gin.Context) {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id"})
		return
	}

	run, err := s.repo.GetRun(runID)
	if err != nil {
		s.logger.Error("Failed to fetch run", "run_id", runID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	decisions, err := s.repo.DecisionsByRun(runID)
	if err != nil {
		s.logger.Error("Failed to fetch run decisions", "run_id", runID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run decisions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":       run,
		"decisions": toDecisionResponses(decisions),
	})
}

func (s *Server) getDecisions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}

	decisions, err := s.repo.ListDecisions(limit)
	if err != nil {
		s.logger.Error("Failed to list decisions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch decisions"})
		return
	}
	c.JSON(http.StatusOK, toDecisionResponses(decisions))
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.repo.DecisionStats()
	if err != nil {
		s.logger.Error("Failed to aggregate stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getTarget(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target id"})
		return
	}

	target, err := s.repo.GetTarget(id)
	if err != nil {
		s.logger.Error("Failed to fetch target", "target_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch target"})
		return
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
		return
	}
	c.JSON(http.StatusOK, toTargetResponse(target))
}

func toDecisionResponses(decisions []*record.LinkageDecision) []DecisionResponse {
	out := make([]DecisionResponse, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, DecisionResponse{
			ID:             d.ID,
			IdempotencyKey: d.IdempotencyKey,
			SourceID:       d.SourceID,
			SourceSystem:   string(d.SourceSystem),
			TargetID:       d.TargetID,
			TargetTable:    string(d.TargetTable),
			Amount:         d.Amount.StringFixed(2),
			Confidence:     d.Confidence,
			Pass:           string(d.Pass),
			RunID:          d.RunID,
			AppliedAt:      d.AppliedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func toTargetResponse(t *record.TargetRecord) TargetResponse {
	return TargetResponse{
		ID:              t.ID,
		TargetTable:     string(t.TargetTable),
		Amount:          t.Amount.StringFixed(2),
		OccurredOn:      t.OccurredOn.Format("2006-01-02"),
		DescriptiveText: t.DescriptiveText,
		ExistingLink:    t.ExistingLink,
	}
}

// Router builds the gin engine with recovery, request logging and CORS.
func (s *Server) Router(cfg config.APIConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health"},
	}))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	{
		api.GET("/runs", s.getRuns)
		api.GET("/runs/:id", s.getRun)
		api.GET("/decisions", s.getDecisions)
		api.GET("/stats", s.getStats)
		api.GET("/targets/:id", s.getTarget)
	}

	return router
}
