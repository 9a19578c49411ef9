// Package api exposes the recommendation engine over HTTP: assessment
// submission, clinician feedback capture, formulary browsing, and health.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
	"github.com/biologic-formulary-engine/internal/feedback"
	"github.com/biologic-formulary-engine/internal/middleware"
	"github.com/biologic-formulary-engine/internal/repository"
	"github.com/biologic-formulary-engine/internal/service"
)

// Server is the HTTP server wiring the engine, loader, and feedback store.
type Server struct {
	configManager domain.ConfigManager
	engine        *service.RecommendationEngine
	loader        *repository.PatientDataLoader
	formulary     domain.FormularyRepository
	feedbackStore feedback.Store
	log           *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates an HTTP server instance.
func NewServer(
	configManager domain.ConfigManager,
	engine *service.RecommendationEngine,
	loader *repository.PatientDataLoader,
	formulary domain.FormularyRepository,
	feedbackStore feedback.Store,
	log *logrus.Logger,
) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())

	server := &Server{
		configManager: configManager,
		engine:        engine,
		loader:        loader,
		formulary:     formulary,
		feedbackStore: feedbackStore,
		log:           log,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/assessments", s.handleCreateAssessment)
		v1.POST("/assessments/:id/feedback", s.handleFeedback)
		v1.GET("/formulary/drugs", s.handleListFormulary)
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}

// assessmentRequest is the wire request for POST /api/v1/assessments.
// The caller may supply full patient data inline or reference a stored
// patient by plan; inline data wins when both are present.
type assessmentRequest struct {
	domain.AssessmentInput
	PlanID  string                  `json:"plan_id,omitempty"`
	Patient *domain.PatientWithData `json:"patient,omitempty"`
}

// handleCreateAssessment runs one assessment.
func (s *Server) handleCreateAssessment(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    domain.ErrInvalidInput,
			"message": "malformed request body",
			"details": err.Error(),
		})
		return
	}

	patient := req.Patient
	if patient == nil {
		loaded, err := s.loader.Load(c.Request.Context(), req.PatientID, req.PlanID)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"patient_id": req.PatientID,
				"plan_id":    req.PlanID,
				"error":      err,
			}).Error("Failed to load patient data")
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    domain.ErrDatabaseError,
				"message": "failed to load patient data",
			})
			return
		}
		patient = loaded
	}

	result, err := s.engine.GenerateRecommendations(c.Request.Context(), &req.AssessmentInput, patient)
	if err != nil {
		s.writeAssessmentError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// feedbackRequest is the wire request for recording a clinician decision.
type feedbackRequest struct {
	RecommendationRank int    `json:"recommendation_rank" binding:"required"`
	PatientID          string `json:"patient_id"`
	Decision           string `json:"decision" binding:"required"`
	ClinicianID        string `json:"clinician_id"`
	Notes              string `json:"notes"`
}

// handleFeedback records a clinician's decision on one recommendation.
func (s *Server) handleFeedback(c *gin.Context) {
	assessmentID := c.Param("id")
	if _, err := uuid.Parse(assessmentID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    domain.ErrInvalidInput,
			"message": "assessment ID must be a UUID",
		})
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    domain.ErrInvalidInput,
			"message": "malformed request body",
			"details": err.Error(),
		})
		return
	}

	decision := feedback.Decision(req.Decision)
	if !decision.IsValid() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    domain.ErrInvalidInput,
			"message": "decision must be ACCEPTED, REJECTED, or MODIFIED",
		})
		return
	}

	fb := &feedback.Feedback{
		AssessmentID:       assessmentID,
		RecommendationRank: req.RecommendationRank,
		PatientID:          req.PatientID,
		Decision:           decision,
		ClinicianID:        req.ClinicianID,
		Notes:              req.Notes,
	}
	if err := s.feedbackStore.Save(c.Request.Context(), fb); err != nil {
		s.log.WithFields(logrus.Fields{
			"assessment_id": assessmentID,
			"rank":          req.RecommendationRank,
			"error":         err,
		}).Error("Failed to save feedback")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    domain.ErrDatabaseError,
			"message": "failed to save feedback",
		})
		return
	}

	c.JSON(http.StatusCreated, fb)
}

// handleListFormulary returns the plan's active formulary snapshot.
func (s *Server) handleListFormulary(c *gin.Context) {
	planID := c.Query("plan_id")
	if planID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    domain.ErrInvalidInput,
			"message": "plan_id query parameter is required",
		})
		return
	}

	drugs, err := s.formulary.ActiveFormulary(c.Request.Context(), planID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"plan_id": planID,
			"error":   err,
		}).Error("Failed to load formulary")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    domain.ErrDatabaseError,
			"message": "failed to load formulary",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plan_id": planID,
		"drugs":   drugs,
		"count":   len(drugs),
	})
}

// writeAssessmentError maps engine errors onto HTTP statuses: validation
// problems are 422, other input errors 400, everything else 500.
func (s *Server) writeAssessmentError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    domain.ErrInvalidInput,
			"message": ve.Error(),
			"field":   ve.Field,
		})
		return
	}

	var ae *domain.AssessmentError
	if errors.As(err, &ae) {
		status := http.StatusInternalServerError
		if domain.IsInputError(ae) {
			status = http.StatusBadRequest
			if ae.Code == domain.ErrInvalidInput {
				status = http.StatusUnprocessableEntity
			}
		}
		ae.RequestID = c.GetString("request_id")
		c.JSON(status, ae)
		return
	}

	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    domain.ErrRecommendation,
			"message": err.Error(),
		})
		return
	}

	s.log.WithField("error", err).Error("Assessment failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    domain.ErrInternalServer,
		"message": "assessment failed",
	})
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware attaches a request ID to each request.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}
