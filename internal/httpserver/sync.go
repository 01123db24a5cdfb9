package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stripe-fire-sync/internal/config"
	"stripe-fire-sync/internal/domain"
	"stripe-fire-sync/internal/service/syncer"
)

type syncRequest struct {
	Variant     string `json:"variant"`
	NameKey     string `json:"nameKey"`
	PriceKey    string `json:"priceKey"`
	CategoryKey string `json:"categoryKey"`
	RefKey      string `json:"refKey"`
	DryRun      bool   `json:"dryRun"`
}

type errorResponse struct {
	Error  string         `json:"error"`
	Phase  string         `json:"phase,omitempty"`
	Report *syncer.Report `json:"report,omitempty"`
}

type syncHandler struct {
	svc        SyncService
	defaultJob config.Job
	logger     *log.Logger
}

func (h *syncHandler) sync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
	}
	if v, err := strconv.ParseBool(c.DefaultQuery("dryRun", "false")); err == nil && v {
		req.DryRun = true
	}

	job := h.jobFor(c.Param("collection"), req)
	// A client hanging up must not abort a pass between billing calls and the write-back.
	report, err := h.svc.Run(context.WithoutCancel(c.Request.Context()), job)
	if err != nil {
		h.writeError(c, err, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// jobFor overlays the request on the default job. Field keys of the default job
// only carry over when the request keeps its variant.
func (h *syncHandler) jobFor(collection string, req syncRequest) config.Job {
	job := h.defaultJob
	job.Collection = collection
	job.DryRun = req.DryRun
	if req.Variant != "" && !strings.EqualFold(req.Variant, job.Variant) {
		job = config.Job{Collection: collection, Variant: req.Variant, RefKey: job.RefKey, DryRun: req.DryRun}
	}
	if req.NameKey != "" {
		job.NameKey = req.NameKey
	}
	if req.PriceKey != "" {
		job.PriceKey = req.PriceKey
	}
	if req.CategoryKey != "" {
		job.CategoryKey = req.CategoryKey
	}
	if req.RefKey != "" {
		job.RefKey = req.RefKey
	}
	return job
}

func (h *syncHandler) purge(c *gin.Context) {
	refKey := c.DefaultQuery("refKey", h.defaultJob.RefKey)
	n, err := h.svc.Purge(c.Request.Context(), c.Param("collection"), refKey)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection": c.Param("collection"), "cleared": n})
}

func (h *syncHandler) runs(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := h.svc.Runs(c.Request.Context(), c.Param("collection"), limit)
	if err != nil {
		h.logger.Printf("http: list runs collection=%s error=%v", c.Param("collection"), err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(runs), "results": runs})
}

func (h *syncHandler) writeError(c *gin.Context, err error, report *syncer.Report) {
	resp := errorResponse{Error: err.Error(), Report: report}
	var phaseErr *syncer.PhaseError
	if errors.As(err, &phaseErr) {
		resp.Phase = phaseErr.Phase
	}
	c.JSON(statusFor(err, resp.Phase), resp)
}

func statusFor(err error, phase string) int {
	switch {
	case phase == syncer.PhaseConfig:
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPassInProgress), errors.Is(err, domain.ErrWriteConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
