package models

import (
	"time"
)

// JobStatus is the lifecycle state of a relay job.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transition may leave this status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job represents one uploaded spreadsheet tracked until the workflow engine answers.
type Job struct {
	ID                string     `json:"jobId"`
	FileName          string     `json:"fileName"`
	ClientName        string     `json:"clientName"`
	Status            JobStatus  `json:"status"`
	UploadedAt        time.Time  `json:"uploadTimestamp"`
	CompletedAt       *time.Time `json:"completedTimestamp,omitempty"` // set only when COMPLETED
	ErrorMessage      *string    `json:"errorMessage,omitempty"`       // set only when FAILED
	ResultLocator     *string    `json:"sheetUrl,omitempty"`           // Google Sheets URL returned inline by the engine
	LocalArtifactPath *string    `json:"-"`                            // file pushed back through the completion callback
	ArtifactMIMEType  string     `json:"-"`
	ArtifactExt       string     `json:"-"`
	CallbackToken     string     `json:"-"`
}

// JobSummary is the shape returned by the status listing.
type JobSummary struct {
	JobID              string     `json:"jobId"`
	FileName           string     `json:"fileName"`
	Status             JobStatus  `json:"status"`
	ClientName         string     `json:"clientName"`
	UploadTimestamp    time.Time  `json:"uploadTimestamp"`
	CompletedTimestamp *time.Time `json:"completedTimestamp"`
	ErrorMessage       *string    `json:"errorMessage"`
	SheetURL           *string    `json:"sheetUrl"`
}

// Summary projects the job onto its public listing fields.
func (j Job) Summary() JobSummary {
	return JobSummary{
		JobID:              j.ID,
		FileName:           j.FileName,
		Status:             j.Status,
		ClientName:         j.ClientName,
		UploadTimestamp:    j.UploadedAt,
		CompletedTimestamp: j.CompletedAt,
		ErrorMessage:       j.ErrorMessage,
		SheetURL:           j.ResultLocator,
	}
}
