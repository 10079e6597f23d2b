package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"sheetrelay/gateway/internal/jobs"
	"sheetrelay/gateway/internal/webhook"
	"sheetrelay/gateway/models"
	"sheetrelay/gateway/utils"
)

// CallbackTokenHeader carries the per-job token handed to the workflow at dispatch.
const CallbackTokenHeader = "X-Callback-Token"

// CompletionResponse acknowledges a completion callback.
type CompletionResponse struct {
	Message string           `json:"message"`
	JobID   string           `json:"jobId"`
	Status  models.JobStatus `json:"status"`
}

// CompleteJob godoc
// @Summary Complete a job from n8n
// @Description Called by the n8n workflow with the processed file. Completes the job unless it already finished.
// @Tags n8n
// @Accept  multipart/form-data
// @Produce  json
// @Param   jobId path string true "Job ID"
// @Param   file formData file true "Processed file"
// @Param   X-Callback-Token header string false "Per-job callback token, required when REQUIRE_CALLBACK_TOKEN is set"
// @Success 200 {object} CompletionResponse "Job completed"
// @Failure 400 {object} ErrorResponse "No file received"
// @Failure 401 {object} ErrorResponse "Missing or invalid secret key or callback token"
// @Failure 404 {object} ErrorResponse "Job not found"
// @Failure 409 {object} ErrorResponse "Job already finished"
// @Failure 500 {object} ErrorResponse "File could not be stored"
// @Security SharedSecret
// @Router /n8n/complete/{jobId} [post]
func (h *ApplicationHandler) CompleteJob(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	entry := h.Logger.WithField("job_id", jobID)

	if h.Settings.RequireCallbackToken {
		if err := h.Dispatcher.VerifyCallbackToken(jobID, c.Get(CallbackTokenHeader)); err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				return utils.RespondWithError(c, fiber.StatusNotFound, "Job not found")
			}
			entry.Warn("Rejected completion callback with a bad token")
			return utils.RespondWithError(c, fiber.StatusUnauthorized, "Invalid callback token")
		}
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "No file received from n8n")
	}
	file, err := fileHeader.Open()
	if err != nil {
		entry.WithError(err).Error("Could not open callback file")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Failed to process completed job")
	}
	defer file.Close()

	job, err := h.Dispatcher.Complete(jobID, webhook.Artifact{Content: file, FileName: fileHeader.Filename})
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrNotFound):
		return utils.RespondWithError(c, fiber.StatusNotFound, "Job not found")
	case errors.Is(err, jobs.ErrInvalidState):
		return utils.RespondWithError(c, fiber.StatusConflict, "Job already "+string(job.Status))
	default:
		entry.WithError(err).Error("N8N completion failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Failed to process completed job")
	}

	return c.JSON(CompletionResponse{
		Message: "Job completed successfully",
		JobID:   job.ID,
		Status:  job.Status,
	})
}
