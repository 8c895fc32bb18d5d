// Copyright (c) 2015-2021 MinIO, Inc.
//
// This file is part of MinIO Object Storage stack
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package model

import "time"

// JobType names one of the built-in queue handlers.
type JobType string

// Built-in job types.
const (
	JobFileProcess  JobType = "file_process"
	JobPatientMatch JobType = "patient_match"
	JobFolderIndex  JobType = "folder_index"
	JobBatchImport  JobType = "batch_import"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

// Job lifecycle states.
const (
	JobPending    JobStatus = "pending"
	JobDelayed    JobStatus = "delayed"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Default priority bands. Lower number, higher priority.
const (
	PriorityWebhook   = 1
	PriorityWatcher   = 2
	PriorityFolder    = 3
	PriorityScheduled = 5
	PriorityFolderIdx = 7
	PriorityLowest    = 10
)

// Attempt records one execution attempt of a job.
type Attempt struct {
	StartedAt time.Time
	Error     string
}

// Job is the unit of work persisted by the priority queue.
type Job struct {
	ID            string
	Type          JobType
	Data          map[string]any
	Priority      int
	Retries       int
	RetriesLeft   int
	TimeoutMs     int64
	Status        JobStatus
	CreatedAt     time.Time
	ScheduledFor  time.Time
	Attempts      []Attempt
	CompletedAt   time.Time
	FailedAt      time.Time
	Result        map[string]any
}

// AddJobOptions tunes how a job is enqueued.
type AddJobOptions struct {
	Priority  int
	Retries   int
	TimeoutMs int64
	DelayMs   int64
}
