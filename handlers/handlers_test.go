package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sheetrelay/gateway/internal/download"
	"sheetrelay/gateway/internal/jobs"
	"sheetrelay/gateway/internal/webhook"
	"sheetrelay/gateway/internal/worker"
	"sheetrelay/gateway/models"
)

const testSecret = "s3cret"

type fakeDispatcher struct {
	store       *jobs.Store
	dispatchErr error

	mu          sync.Mutex
	submissions []webhook.Submission
	evicted     []string
}

func (f *fakeDispatcher) Dispatch(sub webhook.Submission) (models.Job, error) {
	f.mu.Lock()
	f.submissions = append(f.submissions, sub)
	f.mu.Unlock()
	if f.dispatchErr != nil {
		job, _ := f.store.Get(sub.JobID)
		return job, f.dispatchErr
	}
	return f.store.MarkProcessing(sub.JobID)
}

func (f *fakeDispatcher) Complete(string, webhook.Artifact) (models.Job, error) {
	return models.Job{}, fmt.Errorf("not used: %w", jobs.ErrInvalidState)
}

func (f *fakeDispatcher) VerifyCallbackToken(string, string) error { return nil }

func (f *fakeDispatcher) Evicted(job models.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, job.ID)
}

type fakeResolver struct {
	result *download.Result
	err    error
}

func (f *fakeResolver) Resolve(context.Context, string) (*download.Result, error) {
	return f.result, f.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type testApp struct {
	app        *fiber.App
	store      *jobs.Store
	dispatcher *fakeDispatcher
	resolver   *fakeResolver
	uploadDir  string
}

func newTestApp(t *testing.T, opts ...jobs.Option) *testApp {
	t.Helper()
	store := jobs.NewStore(opts...)
	d := &fakeDispatcher{store: store}
	r := &fakeResolver{}
	dir := t.TempDir()
	h := NewApplicationHandler(store, d, r, quietLogger(), Settings{UploadDir: dir})
	return &testApp{
		app:        NewApp(h, AppOptions{SharedSecret: testSecret}),
		store:      store,
		dispatcher: d,
		resolver:   r,
		uploadDir:  dir,
	}
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Invoice"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", 42))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target, fileName string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Secret", testSecret)
	return req
}

func authed(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-API-Secret", testSecret)
	return req
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthNeedsNoSecret(t *testing.T) {
	ta := newTestApp(t)
	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestAPIRequiresSharedSecret(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/jobs/status", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "error", body.Status)
	assert.Contains(t, body.Message, "X-API-Secret")

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/status", nil)
	req.Header.Set("X-API-Secret", "wrong")
	resp, err = ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/status", nil)
	req.Header.Set("X-Secret-Key", testSecret)
	resp, err = ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIWithoutConfiguredSecretFails(t *testing.T) {
	store := jobs.NewStore()
	h := NewApplicationHandler(store, &fakeDispatcher{store: store}, &fakeResolver{}, quietLogger(), Settings{UploadDir: t.TempDir()})
	app := NewApp(h, AppOptions{})

	resp, err := app.Test(authed(http.MethodGet, "/api/jobs/status"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestUploadCreatesAndDispatchesJob(t *testing.T) {
	ta := newTestApp(t)

	req := multipartRequest(t, "/api/jobs/upload", "Q3 Ledger.xlsx", workbookBytes(t), map[string]string{"clientName": "  Acme  "})
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body UploadResponse
	decode(t, resp, &body)
	assert.Empty(t, body.Warning)
	assert.Equal(t, models.StatusProcessing, body.Job.Status)
	assert.Equal(t, "Q3 Ledger.xlsx", body.Job.FileName)
	assert.Equal(t, "Acme", body.Job.ClientName)
	assert.True(t, strings.HasPrefix(body.Job.JobID, "job_"))

	require.Len(t, ta.dispatcher.submissions, 1)
	sub := ta.dispatcher.submissions[0]
	assert.Equal(t, body.Job.JobID, sub.JobID)
	assert.Equal(t, "Acme", sub.ClientName)
	_, err = os.Stat(sub.FilePath)
	assert.NoError(t, err, "uploaded file should be on disk for the dispatcher")

	stored, ok := ta.store.Get(body.Job.JobID)
	require.True(t, ok)
	assert.Equal(t, models.StatusProcessing, stored.Status)
}

func TestUploadRejectsBadFiles(t *testing.T) {
	ta := newTestApp(t)

	cases := []struct {
		name     string
		fileName string
		content  []byte
	}{
		{"missing file", "", nil},
		{"wrong extension", "data.csv", []byte("a,b\n")},
		{"corrupt workbook", "broken.xlsx", []byte("not a workbook")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := ta.app.Test(multipartRequest(t, "/api/jobs/upload", tc.fileName, tc.content, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}

	assert.Zero(t, ta.store.Len())
	assert.Empty(t, ta.dispatcher.submissions)
	entries, err := os.ReadDir(ta.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads must not linger on disk")
}

func TestUploadWithUnconfiguredWebhookWarns(t *testing.T) {
	ta := newTestApp(t)
	ta.dispatcher.dispatchErr = fmt.Errorf("N8N_WEBHOOK_URL is not set: %w", jobs.ErrConfiguration)

	resp, err := ta.app.Test(multipartRequest(t, "/api/jobs/upload", "a.xlsx", workbookBytes(t), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body UploadResponse
	decode(t, resp, &body)
	assert.Equal(t, models.StatusPending, body.Job.Status)
	assert.Contains(t, body.Warning, "N8N_WEBHOOK_URL")
	assert.Contains(t, body.Message, "not configured")
}

func TestListJobsMostRecentFirst(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
	ta := newTestApp(t, jobs.WithClock(clock))

	older, err := ta.store.Create("old.xlsx", "")
	require.NoError(t, err)
	newer, err := ta.store.Create("new.xlsx", "Acme")
	require.NoError(t, err)

	resp, err := ta.app.Test(authed(http.MethodGet, "/api/jobs/status"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body JobListResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Len(t, body.Jobs, 2)
	assert.Equal(t, newer.ID, body.Jobs[0].JobID)
	assert.Equal(t, older.ID, body.Jobs[1].JobID)
	assert.Contains(t, string(raw), `"sheetUrl":null`)
}

func TestGetAndDeleteJob(t *testing.T) {
	ta := newTestApp(t)
	job, err := ta.store.Create("a.xlsx", "")
	require.NoError(t, err)

	resp, err := ta.app.Test(authed(http.MethodGet, "/api/jobs/"+job.ID), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got JobSuccessResponse
	decode(t, resp, &got)
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, job.ID, got.Data.JobID)

	resp, err = ta.app.Test(authed(http.MethodDelete, "/api/jobs/"+job.ID), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{job.ID}, ta.dispatcher.evicted)

	resp, err = ta.app.Test(authed(http.MethodGet, "/api/jobs/"+job.ID), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = ta.app.Test(authed(http.MethodDelete, "/api/jobs/"+job.ID), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDownloadStreamsResult(t *testing.T) {
	ta := newTestApp(t)
	ta.resolver.result = &download.Result{
		Body:        io.NopCloser(strings.NewReader("xlsx-bytes")),
		Size:        10,
		FileName:    "ledger_processed.xlsx",
		ContentType: download.XLSXMIMEType,
	}

	resp, err := ta.app.Test(authed(http.MethodGet, "/api/jobs/download/job_1"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, download.XLSXMIMEType, resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="ledger_processed.xlsx"`, resp.Header.Get("Content-Disposition"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "xlsx-bytes", string(body))
}

func TestDownloadErrorStatuses(t *testing.T) {
	ta := newTestApp(t)
	known, err := ta.store.Create("a.xlsx", "")
	require.NoError(t, err)

	cases := []struct {
		name    string
		jobID   string
		err     error
		status  int
		message string
	}{
		{"unknown job", "job_missing", jobs.ErrNotFound, fiber.StatusNotFound, "Job not found"},
		{"missing artifact", known.ID, jobs.ErrNotFound, fiber.StatusNotFound, "File not found on server"},
		{"not completed", known.ID, jobs.ErrInvalidState, fiber.StatusBadRequest, "Job is not completed yet"},
		{"export failed", known.ID, jobs.ErrUpstreamFailure, fiber.StatusBadGateway, "Failed to download file from Google Sheets"},
		{"export timed out", known.ID, jobs.ErrTimeout, fiber.StatusGatewayTimeout, "Timed out downloading file from Google Sheets"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ta.resolver.err = fmt.Errorf("download: %w", tc.err)
			resp, err := ta.app.Test(authed(http.MethodGet, "/api/jobs/download/"+tc.jobID), -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			var body ErrorResponse
			decode(t, resp, &body)
			assert.Equal(t, tc.message, body.Message)
		})
	}
}

// callbackApp wires a real dispatcher with no usable endpoint, so jobs stay
// PENDING until the completion callback arrives.
func callbackApp(t *testing.T, requireToken bool) (*fiber.App, *jobs.Store) {
	t.Helper()
	logger := quietLogger()
	store := jobs.NewStore()
	pool := worker.NewPool("dispatch", 1, 1, logger)
	d := webhook.NewDispatcher(webhook.Config{CompletedDir: t.TempDir()}, store, pool, logger)
	h := NewApplicationHandler(store, d, &fakeResolver{}, logger, Settings{UploadDir: t.TempDir(), RequireCallbackToken: requireToken})
	return NewApp(h, AppOptions{SharedSecret: testSecret}), store
}

func TestCompleteJobCallback(t *testing.T) {
	app, store := callbackApp(t, false)
	job, err := store.Create("ledger.xlsx", "Acme")
	require.NoError(t, err)

	target := "/api/n8n/complete/" + job.ID
	resp, err := app.Test(multipartRequest(t, target, "out.xlsx", workbookBytes(t), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body CompletionResponse
	decode(t, resp, &body)
	assert.Equal(t, job.ID, body.JobID)
	assert.Equal(t, models.StatusCompleted, body.Status)

	done, ok := store.Get(job.ID)
	require.True(t, ok)
	require.NotNil(t, done.LocalArtifactPath)
	_, err = os.Stat(*done.LocalArtifactPath)
	assert.NoError(t, err)

	resp, err = app.Test(multipartRequest(t, target, "again.xlsx", workbookBytes(t), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = app.Test(multipartRequest(t, "/api/n8n/complete/job_missing", "out.xlsx", workbookBytes(t), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(multipartRequest(t, target, "", nil, map[string]string{"note": "no file"}), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCompleteJobRequiresCallbackToken(t *testing.T) {
	app, store := callbackApp(t, true)
	job, err := store.Create("ledger.xlsx", "")
	require.NoError(t, err)
	target := "/api/n8n/complete/" + job.ID

	resp, err := app.Test(multipartRequest(t, target, "out.xlsx", workbookBytes(t), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := multipartRequest(t, target, "out.xlsx", workbookBytes(t), nil)
	req.Header.Set(CallbackTokenHeader, "forged")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = multipartRequest(t, target, "out.xlsx", workbookBytes(t), nil)
	req.Header.Set(CallbackTokenHeader, job.CallbackToken)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
