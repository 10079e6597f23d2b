package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"sheetrelay/gateway/internal/download"
	"sheetrelay/gateway/internal/jobs"
	"sheetrelay/gateway/internal/webhook"
	"sheetrelay/gateway/models"
)

// JobDispatcher defines the operations handlers expect from the webhook dispatcher.
type JobDispatcher interface {
	Dispatch(sub webhook.Submission) (models.Job, error)
	Complete(jobID string, artifact webhook.Artifact) (models.Job, error)
	VerifyCallbackToken(jobID, token string) error
	Evicted(job models.Job)
}

// ArtifactResolver turns a completed job into downloadable bytes.
type ArtifactResolver interface {
	Resolve(ctx context.Context, jobID string) (*download.Result, error)
}

// Settings are the request-level knobs handlers need from the configuration.
type Settings struct {
	UploadDir            string
	RequireCallbackToken bool
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Store      *jobs.Store
	Dispatcher JobDispatcher
	Resolver   ArtifactResolver
	Logger     *logrus.Logger
	Validate   *validator.Validate
	Settings   Settings
}

// NewApplicationHandler creates a new ApplicationHandler with the given dependencies.
func NewApplicationHandler(store *jobs.Store, dispatcher JobDispatcher, resolver ArtifactResolver, logger *logrus.Logger, settings Settings) *ApplicationHandler {
	return &ApplicationHandler{
		Store:      store,
		Dispatcher: dispatcher,
		Resolver:   resolver,
		Logger:     logger,
		Validate:   validator.New(),
		Settings:   settings,
	}
}

// ErrorResponse defines a common structure for error responses.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
