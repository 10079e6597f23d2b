package mirror

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetrelay/gateway/internal/jobs"
)

type call struct {
	method string
	path   string
	query  string
	apikey string
	body   string
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New("", "key", "", quietLogger())
	assert.Error(t, err)
	_, err = New("https://abc.supabase.co", "", "", quietLogger())
	assert.Error(t, err)
}

func TestMirrorReplicatesStoreChanges(t *testing.T) {
	var mu sync.Mutex
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, call{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			apikey: r.Header.Get("apikey"),
			body:   string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	m, err := New(srv.URL, "service-key", "", quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	store := jobs.NewStore(jobs.WithObserver(m))
	job, err := store.Create("a.xlsx", "Acme")
	require.NoError(t, err)
	_, err = store.MarkProcessing(job.ID)
	require.NoError(t, err)
	store.Delete(job.ID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 3
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	for _, c := range calls {
		assert.Equal(t, "/rest/v1/relay_jobs", c.path)
		assert.Equal(t, "service-key", c.apikey)
	}

	assert.Equal(t, http.MethodPost, calls[0].method)
	var first Row
	require.NoError(t, json.Unmarshal([]byte(calls[0].body), &first))
	assert.Equal(t, job.ID, first.ID)
	assert.Equal(t, "PENDING", first.Status)

	var second Row
	require.NoError(t, json.Unmarshal([]byte(calls[1].body), &second))
	assert.Equal(t, "PROCESSING", second.Status)

	assert.Equal(t, http.MethodDelete, calls[2].method)
	assert.True(t, strings.Contains(calls[2].query, "id=eq."+job.ID), calls[2].query)
}
