package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sheetrelay/gateway/internal/jobs"
	"sheetrelay/gateway/models"
)

const (
	// DefaultFetchTimeout bounds an export download from Google Sheets.
	DefaultFetchTimeout = 60 * time.Second

	// XLSXMIMEType is the content type of exported workbooks.
	XLSXMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	exportURLFormat = "https://docs.google.com/spreadsheets/d/%s/export?format=xlsx&gid=0"
)

var sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// Result is a resolved artifact ready to be streamed to the client. The
// caller closes Body.
type Result struct {
	Body        io.ReadCloser
	Size        int64
	FileName    string
	ContentType string
}

// Resolver turns a completed job into downloadable bytes.
type Resolver struct {
	store   *jobs.Store
	client  *http.Client
	timeout time.Duration
	logger  *logrus.Logger
}

// NewResolver creates a resolver. A nil client uses http.DefaultClient.
func NewResolver(store *jobs.Store, client *http.Client, timeout time.Duration, logger *logrus.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Resolver{store: store, client: client, timeout: timeout, logger: logger}
}

// ExportURL converts a Google Sheets view or edit URL into its xlsx export
// URL. URLs without a recognisable sheet id are returned unchanged.
func ExportURL(locator string) string {
	needsExport := strings.Contains(locator, "/edit") ||
		strings.Contains(locator, "/view") ||
		!strings.Contains(locator, "/export")
	if !needsExport {
		return locator
	}
	m := sheetIDPattern.FindStringSubmatch(locator)
	if m == nil {
		return locator
	}
	return fmt.Sprintf(exportURLFormat, m[1])
}

// Resolve returns the job's result artifact.
func (r *Resolver) Resolve(ctx context.Context, jobID string) (*Result, error) {
	job, ok := r.store.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("download %s: %w", jobID, jobs.ErrNotFound)
	}
	if job.Status != models.StatusCompleted {
		return nil, fmt.Errorf("download %s: job is %s, not completed: %w", jobID, job.Status, jobs.ErrInvalidState)
	}

	switch {
	case job.ResultLocator != nil:
		return r.fetchExport(ctx, job)
	case job.LocalArtifactPath != nil:
		return r.openLocal(job)
	default:
		r.logger.WithField("job_id", jobID).Error("Completed job has neither a sheet URL nor a local artifact")
		return nil, fmt.Errorf("download %s: no retrievable artifact: %w", jobID, jobs.ErrNotFound)
	}
}

func (r *Resolver) fetchExport(ctx context.Context, job models.Job) (*Result, error) {
	exportURL := ExportURL(*job.ResultLocator)
	entry := r.logger.WithFields(logrus.Fields{"job_id": job.ID, "export_url": exportURL})
	entry.Info("Downloading from Google Sheets")

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build export request: %v: %w", err, jobs.ErrUpstreamFailure)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("fetch export after %s: %w", r.timeout, jobs.ErrTimeout)
		}
		return nil, fmt.Errorf("fetch export: %v: %w", err, jobs.ErrUpstreamFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch export: status %d: %w", resp.StatusCode, jobs.ErrUpstreamFailure)
	}

	// Buffer the export so the deadline does not cut the client stream short.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("read export after %s: %w", r.timeout, jobs.ErrTimeout)
		}
		return nil, fmt.Errorf("read export: %v: %w", err, jobs.ErrUpstreamFailure)
	}
	entry.WithField("bytes", len(data)).Info("Downloaded file from Google Sheets")

	return &Result{
		Body:        io.NopCloser(bytes.NewReader(data)),
		Size:        int64(len(data)),
		FileName:    processedName(job.FileName, ".xlsx"),
		ContentType: XLSXMIMEType,
	}, nil
}

func (r *Resolver) openLocal(job models.Job) (*Result, error) {
	path := *job.LocalArtifactPath
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("local artifact %s missing: %w", filepath.Base(path), jobs.ErrNotFound)
		}
		return nil, fmt.Errorf("open local artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat local artifact: %w", err)
	}

	ext := job.ArtifactExt
	if ext == "" {
		ext = filepath.Ext(path)
	}
	if ext == "" {
		ext = filepath.Ext(job.FileName)
	}
	if ext == "" {
		ext = ".xlsx"
	}
	contentType := job.ArtifactMIMEType
	if contentType == "" {
		contentType = XLSXMIMEType
	}

	r.logger.WithFields(logrus.Fields{"job_id": job.ID, "mime_type": contentType, "bytes": info.Size()}).Info("Streaming local artifact")
	return &Result{
		Body:        f,
		Size:        info.Size(),
		FileName:    processedName(job.FileName, ext),
		ContentType: contentType,
	}, nil
}

// processedName derives the download name: original base name + _processed + ext.
func processedName(original, ext string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." {
		base = "result"
	}
	return base + "_processed" + ext
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
