package mirror

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"

	"sheetrelay/gateway/models"
)

// DefaultTable is the PostgREST table job snapshots are written to.
const DefaultTable = "relay_jobs"

const queueSize = 256

// Row is the mirrored shape of a job. It is write-only: the relay never reads
// it back, so a restart still starts from an empty store.
type Row struct {
	ID           string     `json:"id"`
	FileName     string     `json:"file_name"`
	ClientName   string     `json:"client_name"`
	Status       string     `json:"status"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ErrorMessage *string    `json:"error_message"`
	SheetURL     *string    `json:"sheet_url"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type event struct {
	row     *Row
	removed string
}

// Mirror replicates job changes to a Supabase table so dashboards outside the
// relay can follow job progress. Writes are best effort.
type Mirror struct {
	client *postgrest.Client
	table  string
	events chan event
	logger *logrus.Logger
}

// New connects to the PostgREST endpoint of a Supabase project.
func New(supabaseURL, serviceKey, table string, logger *logrus.Logger) (*Mirror, error) {
	if supabaseURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must both be set to enable the job mirror")
	}
	if table == "" {
		table = DefaultTable
	}

	client := postgrest.NewClient(strings.TrimRight(supabaseURL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": fmt.Sprintf("Bearer %s", serviceKey),
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("failed to initialize Supabase client: %w", client.ClientError)
	}

	return &Mirror{
		client: client,
		table:  table,
		events: make(chan event, queueSize),
		logger: logger,
	}, nil
}

// JobChanged queues an upsert of the job's current state.
func (m *Mirror) JobChanged(job models.Job) {
	row := Row{
		ID:           job.ID,
		FileName:     job.FileName,
		ClientName:   job.ClientName,
		Status:       string(job.Status),
		UploadedAt:   job.UploadedAt,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
		SheetURL:     job.ResultLocator,
		UpdatedAt:    time.Now().UTC(),
	}
	m.enqueue(event{row: &row})
}

// JobRemoved queues a delete of the job's row.
func (m *Mirror) JobRemoved(id string) {
	m.enqueue(event{removed: id})
}

func (m *Mirror) enqueue(ev event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("Job mirror queue full, dropping update")
	}
}

// Run writes queued changes until ctx is cancelled, then flushes what is left.
func (m *Mirror) Run(ctx context.Context) error {
	m.logger.Infof("Job mirror writing to table %s", m.table)
	for {
		select {
		case ev := <-m.events:
			m.write(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-m.events:
					m.write(ev)
				default:
					return nil
				}
			}
		}
	}
}

func (m *Mirror) write(ev event) {
	if ev.row != nil {
		_, _, err := m.client.From(m.table).
			Insert(ev.row, true, "id", "minimal", "").
			Execute()
		if err != nil {
			m.logger.WithError(err).WithField("job_id", ev.row.ID).Warn("Failed to mirror job")
		}
		return
	}

	_, _, err := m.client.From(m.table).
		Delete("minimal", "").
		Eq("id", ev.removed).
		Execute()
	if err != nil {
		m.logger.WithError(err).WithField("job_id", ev.removed).Warn("Failed to remove mirrored job")
	}
}
