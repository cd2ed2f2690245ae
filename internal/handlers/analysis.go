package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"knitkart/internal/jobs"
	"knitkart/internal/middleware"
	"knitkart/internal/service"
)

type initiateAnalysisRequest struct {
	JobID  string   `json:"jobId"`
	Images []string `json:"images"`
	Hint   string   `json:"hint"`
}

// InitiateAnalysis registers the job and returns before the model is called.
func (h HandlerSet) InitiateAnalysis(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	var req initiateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	images := trimRefs(req.Images)
	if err := h.uploads.CheckOwnership(c.Request.Context(), p.ID, images); err != nil {
		if errors.Is(err, service.ErrImageNotOwned) {
			fail(c, http.StatusForbidden, service.ErrImageNotOwned.Error())
			return
		}
		h.internalError(c, err, "image ownership check failed")
		return
	}

	err := h.analysis.Initiate(c.Request.Context(), req.JobID, jobs.Input{Images: images, Hint: req.Hint})
	switch {
	case errors.Is(err, jobs.ErrMissingJobID), errors.Is(err, jobs.ErrNoImages), errors.Is(err, jobs.ErrTooManyImages):
		fail(c, http.StatusBadRequest, err.Error())
	case err != nil:
		h.log.Error().Err(err).Str("job_id", req.JobID).Msg("initiate analysis failed")
		fail(c, http.StatusInternalServerError, jobs.MessageUnscheduled)
	default:
		c.JSON(http.StatusAccepted, gin.H{
			"success":        true,
			"jobId":          req.JobID,
			"pollIntervalMs": h.cfg.Analysis.PollInterval.Milliseconds(),
		})
	}
}

// trimRefs drops blank refs so the keys checked for ownership are the ones analysed.
func trimRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

type analysisStatusResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AnalysisStatus is polled by the client until the status is terminal.
func (h HandlerSet) AnalysisStatus(c *gin.Context) {
	job, err := h.analysis.CheckStatus(c.Request.Context(), c.Param("jobId"))
	if errors.Is(err, jobs.ErrUnknownJob) {
		c.JSON(http.StatusNotFound, analysisStatusResponse{Status: "unknown", Error: "unknown_job"})
		return
	}
	if err != nil {
		h.internalError(c, err, "check analysis status failed")
		return
	}

	resp := analysisStatusResponse{Status: string(job.Status), Error: job.Error}
	switch job.Status {
	case jobs.StatusCompleted:
		resp.Data = job.Result
	case jobs.StatusPending:
		c.Header("Retry-After", strconv.Itoa(int(h.cfg.Analysis.PollInterval.Seconds())))
	}
	c.JSON(http.StatusOK, resp)
}
