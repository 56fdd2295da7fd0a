package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinelops/incident-engine/internal/models"
	"github.com/sentinelops/incident-engine/internal/repo"
	"github.com/sentinelops/incident-engine/internal/utils"
)

type createIncidentRequest struct {
	Scope       string `json:"scope" binding:"required"`
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`
}

type alarmRequest struct {
	Scope   string `json:"scope" binding:"required"`
	Payload string `json:"payload,omitempty"`
}

type approveRequest struct {
	Approver string `json:"approver" binding:"required"`
}

type denyRequest struct {
	Denier string `json:"denier" binding:"required"`
	Reason string `json:"reason,omitempty"`
}

type safetyResetRequest struct {
	Scope string `json:"scope" binding:"required"`
	SOPID string `json:"sop_id" binding:"required"`
}

// handleCreateIncident runs a manual diagnostic. Manual triggers always
// bypass the snapshot cache.
func (s *Server) handleCreateIncident(c *gin.Context) {
	var req createIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	window, err := parseWindow(req.WindowStart, req.WindowEnd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := s.orch.Run(c.Request.Context(), models.Trigger{
		Scope:  req.Scope,
		Type:   models.TriggerManual,
		Window: window,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, incident)
}

// handleAlarm runs the pipeline for an inbound alarm.
func (s *Server) handleAlarm(c *gin.Context) {
	var req alarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := s.orch.Run(c.Request.Context(), models.Trigger{
		Scope:        req.Scope,
		Type:         models.TriggerAlarm,
		AlarmPayload: req.Payload,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, incident)
}

func (s *Server) handleGetIncident(c *gin.Context) {
	incident, err := s.incidents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repo.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleListIncidents(c *gin.Context) {
	state := models.IncidentState(c.Query("state"))
	limit := 50
	incidents, err := s.incidents.List(c.Request.Context(), state, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "count": len(incidents)})
}

func (s *Server) handleApprove(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := s.orch.Approve(c.Request.Context(), c.Param("id"), req.Approver)
	if err != nil {
		if errors.Is(err, repo.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleDeny(c *gin.Context) {
	var req denyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := s.orch.Deny(c.Request.Context(), c.Param("id"), req.Denier, req.Reason)
	if err != nil {
		if errors.Is(err, repo.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleRetry(c *gin.Context) {
	incident, err := s.orch.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repo.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleRebuildIndex(c *gin.Context) {
	indexed, err := s.knowledge.RebuildIndex(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"indexed": indexed})
}

func (s *Server) handleSafetyReset(c *gin.Context) {
	var req safetyResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.gate.Reset(req.Scope, req.SOPID)
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"p95_latency": s.orch.Latency(95).String(),
	})
}

func parseWindow(start, end string) (models.TimeRange, error) {
	if start == "" && end == "" {
		return models.TimeRange{}, nil
	}
	var window models.TimeRange
	var err error
	if window.Start, err = utils.ParseRFC3339(start); err != nil {
		return models.TimeRange{}, err
	}
	if window.End, err = utils.ParseRFC3339(end); err != nil {
		return models.TimeRange{}, err
	}
	return window, nil
}
