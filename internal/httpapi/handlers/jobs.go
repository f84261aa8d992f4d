package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/summarizer/internal/httpapi/middleware"
	"github.com/suPer8Hu/summarizer/internal/jobs"
)

const stillProcessing = "Job is still being processed"

// Submit handles POST /submit.
func (h *Handler) Submit(c *gin.Context) {
	var req jobs.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	j, err := h.Jobs.Submit(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, jobs.ErrValidation) {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("create job failed")
		fail(c, http.StatusInternalServerError, "Failed to create job. Please try again.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"jobId":  j.ID,
		"status": j.Status,
	})
}

// lookupFailed maps query errors to 400/404/500 and reports whether it wrote a response.
func lookupFailed(c *gin.Context, err error, internalMsg string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, jobs.ErrInvalidJobID):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrJobNotFound):
		fail(c, http.StatusNotFound, err.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Str("job_id", c.Param("jobId")).Msg("job lookup failed")
		fail(c, http.StatusInternalServerError, internalMsg)
	}
	return true
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// GetStatus handles GET /status/:jobId.
func (h *Handler) GetStatus(c *gin.Context) {
	j, err := h.Jobs.GetStatus(c.Request.Context(), c.Param("jobId"))
	if lookupFailed(c, err, "Failed to fetch job status. Please try again.") {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobId":      j.ID,
		"status":     j.Status,
		"isCacheHit": j.IsCacheHit,
		"createdAt":  isoTime(j.CreatedAt),
		"updatedAt":  isoTime(j.UpdatedAt),
	})
}

// GetResult handles GET /result/:jobId. A failed job is still a successful
// query, so it answers 200 with the stored error.
func (h *Handler) GetResult(c *gin.Context) {
	res, err := h.Jobs.GetResult(c.Request.Context(), c.Param("jobId"))
	if lookupFailed(c, err, "Failed to fetch job result. Please try again.") {
		return
	}
	j := res.Job

	switch j.Status {
	case jobs.StatusQueued, jobs.StatusProcessing:
		c.JSON(http.StatusAccepted, gin.H{
			"jobId":   j.ID,
			"status":  j.Status,
			"message": stillProcessing,
		})

	case jobs.StatusCompleted:
		summary := ""
		if j.Summary != nil {
			summary = *j.Summary
		}
		isCacheHit := false
		if j.IsCacheHit != nil {
			isCacheHit = *j.IsCacheHit
		}
		c.JSON(http.StatusOK, gin.H{
			"jobId":          j.ID,
			"status":         j.Status,
			"summary":        summary,
			"completedAt":    isoTime(j.UpdatedAt),
			"processingTime": fmt.Sprintf("%.2fs", j.ProcessingTime().Seconds()),
			"isCacheHit":     isCacheHit,
			"cacheInfo":      cacheInfo(res),
		})

	case jobs.StatusFailed:
		msg := "Job processing failed"
		if j.ErrorMessage != nil && *j.ErrorMessage != "" {
			msg = *j.ErrorMessage
		}
		c.JSON(http.StatusOK, gin.H{
			"jobId":  j.ID,
			"status": j.Status,
			"error":  msg,
		})

	default:
		fail(c, http.StatusInternalServerError, "Unexpected job status.")
	}
}

// cacheInfo reports the remaining lifetime of the summary's cache entry;
// both figures are null when the entry expired or the cache is unreachable.
func cacheInfo(res *jobs.Result) gin.H {
	if !res.Cached {
		return gin.H{"isCached": false, "expiresInMinutes": nil, "remainingSeconds": nil}
	}
	secs := int64(math.Ceil(res.CacheTTL.Seconds()))
	return gin.H{
		"isCached":         true,
		"expiresInMinutes": int64(math.Ceil(float64(secs) / 60)),
		"remainingSeconds": secs,
	}
}
