package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sheetrelay/gateway/internal/jobs"
	"sheetrelay/gateway/internal/worker"
	"sheetrelay/gateway/models"
)

const (
	// DefaultTimeout bounds how long a job may stay PROCESSING without an answer.
	DefaultTimeout = 30 * time.Minute

	// XLSXMIMEType is sent for uploads whose content type is unknown.
	XLSXMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// CallbackPath is the completion route, relative to the public base URL.
	CallbackPath = "/api/n8n/complete/"

	maxResponseBytes = 10 << 20
)

var (
	errSuperseded = errors.New("dispatch superseded by completion callback")
	errEvicted    = errors.New("job evicted")
	errShutdown   = errors.New("server shutting down")
)

// Config holds the dispatcher settings.
type Config struct {
	Endpoint      string
	Timeout       time.Duration
	PublicBaseURL string
	CompletedDir  string
}

// Submission is an accepted upload waiting to be handed to the engine.
type Submission struct {
	JobID       string
	FilePath    string
	FileName    string
	ContentType string
	ClientName  string
}

// armed is the cancellation token of one in-flight dispatch.
type armed struct {
	timer  *time.Timer
	cancel context.CancelCauseFunc
}

// Dispatcher hands uploads to the workflow engine and reconciles job status
// from its synchronous answer, its completion callback or the timeout.
type Dispatcher struct {
	cfg         Config
	endpointErr error
	store       *jobs.Store
	pool        *worker.Pool
	client      *http.Client
	logger      *logrus.Logger

	mu       sync.Mutex
	inflight map[string]*armed
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the client used for webhook calls.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// NewDispatcher creates a dispatcher. An unusable endpoint is not an error
// here: every Dispatch then reports jobs.ErrConfiguration and leaves the job
// PENDING.
func NewDispatcher(cfg Config, store *jobs.Store, pool *worker.Pool, logger *logrus.Logger, opts ...Option) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d := &Dispatcher{
		cfg:         cfg,
		endpointErr: ValidateEndpoint(cfg.Endpoint),
		store:       store,
		pool:        pool,
		client:      &http.Client{},
		logger:      logger,
		inflight:    make(map[string]*armed),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.endpointErr != nil {
		logger.WithError(d.endpointErr).Warn("N8N_WEBHOOK_URL not configured or using placeholder; uploads will stay PENDING")
	}
	return d
}

// EndpointError returns why the endpoint is unusable, or nil.
func (d *Dispatcher) EndpointError() error {
	return d.endpointErr
}

// Dispatch hands the submission to the engine in the background. The
// returned job reflects the status right after the handoff. An error
// wrapping jobs.ErrConfiguration is a warning: the job exists and stays
// PENDING.
func (d *Dispatcher) Dispatch(sub Submission) (models.Job, error) {
	entry := d.logger.WithFields(logrus.Fields{"job_id": sub.JobID, "file_name": sub.FileName, "client_name": sub.ClientName})

	if d.endpointErr != nil {
		removeFile(sub.FilePath, entry)
		job, ok := d.store.Get(sub.JobID)
		if !ok {
			return models.Job{}, fmt.Errorf("dispatch %s: %w", sub.JobID, jobs.ErrNotFound)
		}
		entry.Warn("Skipping webhook call, endpoint not configured")
		return job, d.endpointErr
	}

	job, err := d.store.MarkProcessing(sub.JobID)
	if err != nil {
		removeFile(sub.FilePath, entry)
		return job, err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	token := &armed{cancel: cancel}
	d.mu.Lock()
	d.inflight[sub.JobID] = token
	token.timer = time.AfterFunc(d.cfg.Timeout, func() { d.expire(sub.JobID, token) })
	d.mu.Unlock()

	task := &dispatchTask{d: d, sub: sub, ctx: ctx, token: token, callbackToken: job.CallbackToken}
	if err := d.pool.Submit(task); err != nil {
		d.disarm(sub.JobID, token)
		cancel(err)
		removeFile(sub.FilePath, entry)
		msg := fmt.Sprintf("Failed to send file to processing workflow: %v", err)
		if failed, ferr := d.store.TryFail(sub.JobID, msg); ferr == nil {
			job = failed
		}
		entry.WithError(err).Error("Could not queue webhook call")
		return job, nil
	}

	entry.Infof("Queued webhook call to %s", d.cfg.Endpoint)
	return job, nil
}

// InFlight reports whether a dispatch for the job is still armed.
func (d *Dispatcher) InFlight(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[jobID]
	return ok
}

// Evicted releases everything held for a job removed by the expiry sweep.
func (d *Dispatcher) Evicted(job models.Job) {
	d.abort(job.ID, errEvicted)
	if job.LocalArtifactPath != nil {
		removeFile(*job.LocalArtifactPath, d.logger.WithField("job_id", job.ID))
	}
}

// Shutdown cancels every in-flight dispatch.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	pending := d.inflight
	d.inflight = make(map[string]*armed)
	d.mu.Unlock()

	for _, token := range pending {
		token.timer.Stop()
		token.cancel(errShutdown)
	}
}

// disarm stops the timer if token is still the job's current dispatch. It
// returns false when the token was already consumed by another reconciliation.
func (d *Dispatcher) disarm(jobID string, token *armed) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inflight[jobID] != token {
		return false
	}
	delete(d.inflight, jobID)
	token.timer.Stop()
	return true
}

func (d *Dispatcher) abort(jobID string, cause error) {
	d.mu.Lock()
	token, ok := d.inflight[jobID]
	if ok {
		delete(d.inflight, jobID)
	}
	d.mu.Unlock()

	if ok {
		token.timer.Stop()
		token.cancel(cause)
	}
}

func (d *Dispatcher) expire(jobID string, token *armed) {
	if !d.disarm(jobID, token) {
		return
	}
	token.cancel(jobs.ErrTimeout)

	if _, err := d.store.TryFail(jobID, d.timeoutMessage()); err == nil {
		d.logger.WithField("job_id", jobID).Warnf("Job timed out after %s - marking as failed", d.cfg.Timeout)
	}
}

func (d *Dispatcher) timeoutMessage() string {
	return fmt.Sprintf("Processing timeout: No response from n8n workflow within %s. Please check n8n execution history.", humanDuration(d.cfg.Timeout))
}

// dispatchTask performs one webhook round-trip on the worker pool.
type dispatchTask struct {
	d             *Dispatcher
	sub           Submission
	ctx           context.Context
	token         *armed
	callbackToken string
}

func (t *dispatchTask) ID() string { return t.sub.JobID }

func (t *dispatchTask) Execute(poolCtx context.Context) error {
	d := t.d
	entry := d.logger.WithField("job_id", t.sub.JobID)
	stop := context.AfterFunc(poolCtx, func() { t.token.cancel(errShutdown) })
	defer stop()
	defer t.token.cancel(nil)
	defer removeFile(t.sub.FilePath, entry)

	entry.Infof("Sending %s to n8n webhook", t.sub.FileName)
	body, err := t.post()
	if err != nil {
		d.disarm(t.sub.JobID, t.token)
		t.reconcileFailure(err, entry)
		return err
	}

	d.disarm(t.sub.JobID, t.token)
	locator, err := ExtractLocator(body)
	if err != nil {
		entry.WithField("response", truncate(string(body), 2000)).Warn("JSON response does not contain a valid Google Sheets URL")
		t.fail(err.Error(), entry)
		return nil
	}

	if _, err := d.store.TryComplete(t.sub.JobID, jobs.Completion{ResultLocator: locator}); err != nil {
		entry.WithError(err).Info("Ignoring webhook result, job already settled")
		return nil
	}
	entry.WithField("sheet_url", locator).Info("Job marked as COMPLETED with Google Sheets URL")
	return nil
}

// post sends the multipart request and returns the body of a 2xx response.
func (t *dispatchTask) post() ([]byte, error) {
	f, err := os.Open(t.sub.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(t.writeForm(mw, f))
	}()

	req, err := http.NewRequestWithContext(t.ctx, http.MethodPost, t.d.cfg.Endpoint, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := t.d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

func (t *dispatchTask) writeForm(mw *multipart.Writer, file io.Reader) error {
	contentType := t.sub.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = XLSXMIMEType
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(t.sub.FileName)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}

	fields := [][2]string{
		{"jobId", t.sub.JobID},
		{"clientName", t.sub.ClientName},
		{"callbackToken", t.callbackToken},
	}
	if base := strings.TrimRight(t.d.cfg.PublicBaseURL, "/"); base != "" {
		fields = append(fields, [2]string{"callbackUrl", base + CallbackPath + t.sub.JobID})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return mw.Close()
}

func (t *dispatchTask) reconcileFailure(err error, entry *logrus.Entry) {
	cause := context.Cause(t.ctx)
	switch {
	case errors.Is(cause, errSuperseded), errors.Is(cause, errEvicted), errors.Is(cause, errShutdown):
		entry.WithField("cause", cause.Error()).Info("Webhook call abandoned")
		if errors.Is(cause, errShutdown) {
			t.fail("Processing aborted: server shut down before n8n responded.", entry)
		}
		return
	case errors.Is(cause, jobs.ErrTimeout), isTimeout(err):
		entry.WithError(err).Warn("N8N webhook timeout - marking job as failed")
		t.fail(t.d.timeoutMessage(), entry)
		return
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		entry.WithField("status_code", statusErr.Code).Error("N8N webhook returned an error status")
		t.fail(statusErr.Message(), entry)
		return
	}

	entry.WithError(err).Error("N8N webhook error")
	msg := err.Error()
	if msg == "" {
		msg = "Failed to communicate with n8n workflow"
	}
	t.fail(msg, entry)
}

func (t *dispatchTask) fail(msg string, entry *logrus.Entry) {
	if _, err := t.d.store.TryFail(t.sub.JobID, msg); err != nil {
		entry.WithError(err).Debug("Failure not recorded, job already settled")
		return
	}
	entry.WithField("error_message", msg).Warn("Job marked as FAILED")
}

// StatusError is returned for a non-2xx webhook response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %v", e.Code, jobs.ErrUpstreamFailure)
}

func (e *StatusError) Unwrap() error { return jobs.ErrUpstreamFailure }

// Message is the job error message recorded for this status.
func (e *StatusError) Message() string {
	if e.Code == http.StatusNotFound {
		return "N8N webhook returned 404 (Not Found)"
	}
	return fmt.Sprintf("N8N webhook returned error: %d %s", e.Code, http.StatusText(e.Code))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func removeFile(path string, entry *logrus.Entry) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		entry.WithError(err).Warnf("Could not remove %s", filepath.Base(path))
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return pluralize(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return pluralize(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
