package webhook

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"sheetrelay/gateway/internal/jobs"
	"sheetrelay/gateway/models"
)

// ErrBadCallbackToken is returned when the callback token does not match the job.
var ErrBadCallbackToken = errors.New("invalid callback token")

// Artifact is a result file pushed by the engine on the completion callback.
type Artifact struct {
	Content  io.Reader
	FileName string
}

// VerifyCallbackToken checks the token the engine echoed against the job's.
func (d *Dispatcher) VerifyCallbackToken(jobID, token string) error {
	job, ok := d.store.Get(jobID)
	if !ok {
		return fmt.Errorf("verify callback for %s: %w", jobID, jobs.ErrNotFound)
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(job.CallbackToken)) != 1 {
		return ErrBadCallbackToken
	}
	return nil
}

// Complete stores the pushed artifact and completes the job with it. It
// fails with jobs.ErrNotFound for an unknown job and jobs.ErrInvalidState
// when the job already reached a terminal state.
func (d *Dispatcher) Complete(jobID string, artifact Artifact) (models.Job, error) {
	entry := d.logger.WithField("job_id", jobID)

	job, ok := d.store.Get(jobID)
	if !ok {
		return models.Job{}, fmt.Errorf("complete %s: %w", jobID, jobs.ErrNotFound)
	}
	if job.Status.Terminal() {
		return job, fmt.Errorf("complete %s: already %s: %w", jobID, job.Status, jobs.ErrInvalidState)
	}

	path, err := d.saveArtifact(jobID, artifact)
	if err != nil {
		return job, err
	}

	mimeType, ext := describeArtifact(path, artifact.FileName, job.FileName)
	done, err := d.store.TryComplete(jobID, jobs.Completion{
		LocalArtifactPath: path,
		MIMEType:          mimeType,
		Ext:               ext,
	})
	if err != nil {
		removeFile(path, entry)
		return done, err
	}

	d.abort(jobID, errSuperseded)
	entry.WithFields(logrus.Fields{"path": path, "mime_type": mimeType}).Info("Job marked as COMPLETED from completion callback")
	return done, nil
}

func (d *Dispatcher) saveArtifact(jobID string, artifact Artifact) (string, error) {
	dir := d.cfg.CompletedDir
	if dir == "" {
		dir = "completed"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create completed dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(artifact.FileName))
	if ext == "" {
		ext = ".xlsx"
	}
	name := fmt.Sprintf("%s-%d%s", jobID, d.store.Now().UnixMilli(), ext)
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(f, artifact.Content); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	return path, nil
}

// describeArtifact sniffs the stored file. Generic zip/octet-stream results
// fall back to the spreadsheet type, since xlsx files are zip archives.
func describeArtifact(path, pushedName, originalName string) (string, string) {
	ext := strings.ToLower(filepath.Ext(pushedName))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(originalName))
	}

	mimeType := XLSXMIMEType
	if mtype, err := mimetype.DetectFile(path); err == nil {
		switch {
		case mtype.Is("application/zip"), mtype.Is("application/octet-stream"):
		default:
			mimeType = mtype.String()
			if ext == "" {
				ext = mtype.Extension()
			}
		}
	}
	if ext == "" {
		ext = ".xlsx"
	}
	return mimeType, ext
}
