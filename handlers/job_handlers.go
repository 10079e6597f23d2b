package handlers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"sheetrelay/gateway/internal/jobs"
	"sheetrelay/gateway/internal/sheet"
	"sheetrelay/gateway/internal/webhook"
	"sheetrelay/gateway/models"
	"sheetrelay/gateway/utils"
)

// UploadForm holds the non-file fields of an upload.
type UploadForm struct {
	ClientName string `validate:"max=200"`
}

// UploadResponse is returned once the job exists, whatever happens to the dispatch.
type UploadResponse struct {
	Message string            `json:"message"`
	Job     models.JobSummary `json:"job"`
	Warning string            `json:"warning,omitempty"`
}

// JobListResponse is the status listing, most recent upload first.
type JobListResponse struct {
	Jobs []models.JobSummary `json:"jobs"`
}

// JobSuccessResponse wraps a single job summary.
type JobSuccessResponse struct {
	Status string            `json:"status"`
	Data   models.JobSummary `json:"data"`
}

// UploadJob godoc
// @Summary Upload a spreadsheet
// @Description Stores the workbook, creates a PENDING job and hands the file to the n8n workflow in the background.
// @Description Dispatch failures do not fail the upload; they show up later as a FAILED job.
// @Tags jobs
// @Accept  multipart/form-data
// @Produce  json
// @Param   file formData file true "Excel workbook (.xlsx or .xls)"
// @Param   clientName formData string false "Client the workbook belongs to"
// @Success 200 {object} UploadResponse "Job created; warning is set when the webhook is not configured"
// @Failure 400 {object} ErrorResponse "Missing or unsupported file"
// @Failure 401 {object} ErrorResponse "Missing or invalid secret key"
// @Failure 500 {object} ErrorResponse "File could not be stored"
// @Security SharedSecret
// @Router /jobs/upload [post]
func (h *ApplicationHandler) UploadJob(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "No file uploaded")
	}

	form := UploadForm{ClientName: utils.SanitizeInput(c.FormValue("clientName"))}
	if err := h.Validate.Struct(form); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), "; "))
	}
	if err := sheet.CheckExtension(fileHeader.Filename); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Please select a valid Excel file (.xlsx or .xls)")
	}

	entry := h.Logger.WithFields(logrus.Fields{"file_name": fileHeader.Filename, "client_name": form.ClientName})

	if err := os.MkdirAll(h.Settings.UploadDir, 0o755); err != nil {
		entry.WithError(err).Error("Could not create upload directory")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Failed to upload file")
	}
	storedPath := filepath.Join(h.Settings.UploadDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(fileHeader.Filename)))
	if err := c.SaveFile(fileHeader, storedPath); err != nil {
		entry.WithError(err).Error("Could not save uploaded file")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Failed to upload file")
	}

	summary, err := sheet.Inspect(storedPath, fileHeader.Filename)
	if err != nil {
		os.Remove(storedPath)
		entry.WithError(err).Warn("Rejected unreadable workbook")
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Please select a valid Excel file (.xlsx or .xls)")
	}
	if summary.Parsed {
		entry.WithFields(logrus.Fields{"sheets": len(summary.Sheets), "rows": summary.DataRows}).Info("Workbook accepted")
	}

	job, err := h.Store.Create(fileHeader.Filename, form.ClientName)
	if err != nil {
		os.Remove(storedPath)
		entry.WithError(err).Error("Could not create job")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Failed to upload file")
	}

	resp := UploadResponse{Message: "File uploaded successfully and job created. Processing started."}
	dispatched, err := h.Dispatcher.Dispatch(webhook.Submission{
		JobID:       job.ID,
		FilePath:    storedPath,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get(fiber.HeaderContentType),
		ClientName:  form.ClientName,
	})
	switch {
	case err == nil:
		job = dispatched
	case errors.Is(err, jobs.ErrConfiguration):
		job = dispatched
		resp.Message = "File uploaded successfully. Note: N8N webhook not configured - job will not be processed."
		resp.Warning = err.Error()
	default:
		// The job exists; its status tells the rest.
		entry.WithError(err).WithField("job_id", job.ID).Error("Dispatch did not start")
		if current, ok := h.Store.Get(job.ID); ok {
			job = current
		}
	}

	resp.Job = job.Summary()
	return c.Status(fiber.StatusOK).JSON(resp)
}

// ListJobs godoc
// @Summary List jobs
// @Description Returns every tracked job, most recent upload first.
// @Tags jobs
// @Produce  json
// @Success 200 {object} JobListResponse "Job summaries"
// @Failure 401 {object} ErrorResponse "Missing or invalid secret key"
// @Security SharedSecret
// @Router /jobs/status [get]
func (h *ApplicationHandler) ListJobs(c *fiber.Ctx) error {
	all := h.Store.List()
	summaries := make([]models.JobSummary, 0, len(all))
	for _, job := range all {
		summaries = append(summaries, job.Summary())
	}
	return c.JSON(JobListResponse{Jobs: summaries})
}

// GetJob godoc
// @Summary Get a job
// @Description Returns the summary of a single job.
// @Tags jobs
// @Produce  json
// @Param   jobId path string true "Job ID"
// @Success 200 {object} JobSuccessResponse "Job summary"
// @Failure 404 {object} ErrorResponse "Job not found"
// @Security SharedSecret
// @Router /jobs/{jobId} [get]
func (h *ApplicationHandler) GetJob(c *fiber.Ctx) error {
	job, ok := h.Store.Get(c.Params("jobId"))
	if !ok {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Job not found")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, job.Summary())
}

// DeleteJob godoc
// @Summary Delete a job
// @Description Drops the job record and any stored result file. A dispatch still in flight settles into nothing.
// @Tags jobs
// @Produce  json
// @Param   jobId path string true "Job ID"
// @Success 204 "Job deleted"
// @Failure 404 {object} ErrorResponse "Job not found"
// @Security SharedSecret
// @Router /jobs/{jobId} [delete]
func (h *ApplicationHandler) DeleteJob(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	job, ok := h.Store.Get(jobID)
	if !ok || !h.Store.Delete(jobID) {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Job not found")
	}
	h.Dispatcher.Evicted(job)
	h.Logger.WithField("job_id", jobID).Info("Job deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

// DownloadJob godoc
// @Summary Download a job result
// @Description Streams the processed workbook. Google Sheets results are exported as xlsx; callback results are served from disk.
// @Tags jobs
// @Produce  application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param   jobId path string true "Job ID"
// @Success 200 {file} file "Processed workbook"
// @Failure 400 {object} ErrorResponse "Job is not completed yet"
// @Failure 404 {object} ErrorResponse "Job or file not found"
// @Failure 502 {object} ErrorResponse "Google Sheets export failed"
// @Failure 504 {object} ErrorResponse "Google Sheets export timed out"
// @Security SharedSecret
// @Router /jobs/download/{jobId} [get]
func (h *ApplicationHandler) DownloadJob(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	res, err := h.Resolver.Resolve(c.UserContext(), jobID)
	if err != nil {
		h.Logger.WithError(err).WithField("job_id", jobID).Warn("Download failed")
		code, message := h.downloadErrorStatus(jobID, err)
		return utils.RespondWithError(c, code, message)
	}

	c.Set(fiber.HeaderContentType, res.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, strings.ReplaceAll(res.FileName, `"`, `\"`)))
	return c.SendStream(res.Body, int(res.Size))
}

func (h *ApplicationHandler) downloadErrorStatus(jobID string, err error) (int, string) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		if _, ok := h.Store.Get(jobID); !ok {
			return fiber.StatusNotFound, "Job not found"
		}
		return fiber.StatusNotFound, "File not found on server"
	case errors.Is(err, jobs.ErrInvalidState):
		return fiber.StatusBadRequest, "Job is not completed yet"
	case errors.Is(err, jobs.ErrTimeout):
		return fiber.StatusGatewayTimeout, "Timed out downloading file from Google Sheets"
	case errors.Is(err, jobs.ErrUpstreamFailure):
		return fiber.StatusBadGateway, "Failed to download file from Google Sheets"
	default:
		return fiber.StatusInternalServerError, "Failed to download file"
	}
}
