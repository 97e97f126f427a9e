package model

import (
	"time"
)

type JobStatus string

const (
	JobCreated   JobStatus = "created"
	JobPopulated JobStatus = "populated"
	JobArchived  JobStatus = "archived"
	JobDelivered JobStatus = "delivered"
	JobCleaned   JobStatus = "cleaned"
	JobFailed    JobStatus = "failed"
)

// Job is one request's generate-and-package unit of work.
//
// - Workspace is the absolute path of the job's private directory. It is only
//   meaningful until the job reaches a terminal status.
// - Files are workspace-relative names, which are also the archive entry names.
type Job struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	Status      JobStatus `json:"status"`
	Prompt      string    `json:"prompt"`
	Workspace   string    `json:"-"`
	Files       []string  `json:"files,omitempty"`
	ArchivePath string    `json:"-"`
	ArchiveName string    `json:"archiveName,omitempty"`
	Error       string    `json:"error,omitempty"`
}
