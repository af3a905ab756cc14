// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grbl-host/grbl"
)

type JobStatus string

const (
	JobWaiting   JobStatus = "WAITING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCanceled  JobStatus = "CANCELED"
)

// Job is a G-code program streamed to the controller line by line. The
// driver's flow control provides the pacing; a job advances only as
// lines are acknowledged.
type Job struct {
	ID          string
	Lines       []string
	Status      JobStatus
	Error       string // first error for FAILED jobs
	TimeAdded   time.Time
	TimeStarted *time.Time
	TimeEnded   *time.Time
}

// lineSubmitter is the slice of the driver the scheduler needs; tests
// substitute a stub.
type lineSubmitter interface {
	Submit(ctx context.Context, cmd grbl.LineCommand) (grbl.Response, error)
}

// JobSched stores the job list and streams one job at a time.
// ~Unsafe methods are not mutex-protected, caller must hold the mutex.
type JobSched struct {
	mu        sync.Mutex
	jobs      []Job
	nextJobID int
	cancel    context.CancelFunc // set while a job is running

	submitter func() lineSubmitter
}

// InitJobSched creates and starts a scheduler. submitter returns the
// current driver handle, or nil while the link is down.
func InitJobSched(submitter func() lineSubmitter) *JobSched {
	sched := &JobSched{
		nextJobID: 1,
		submitter: submitter,
	}
	go sched.keepExecutingJobs()
	return sched
}

func (js *JobSched) issueNewJobIDUnsafe() string {
	jobID := fmt.Sprintf("jb%d", js.nextJobID)
	js.nextJobID++
	return jobID
}

func (js *JobSched) findPendingJobUnsafe() *Job {
	for i := range js.jobs {
		if js.jobs[i].Status == JobWaiting || js.jobs[i].Status == JobRunning {
			return &js.jobs[i]
		}
	}
	return nil
}

func (js *JobSched) keepExecutingJobs() {
	for {
		job, ctx := js.claimNextJob()
		if job == nil {
			time.Sleep(500 * time.Millisecond)
			continue
		}
		js.runJob(job, ctx)
	}
}

// claimNextJob marks the oldest waiting job as running, if the link is
// up, and hands out its cancellation context.
func (js *JobSched) claimNextJob() (*Job, context.Context) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.submitter() == nil {
		return nil, nil
	}
	for i := range js.jobs {
		if js.jobs[i].Status != JobWaiting {
			continue
		}
		tStart := time.Now().Local()
		js.jobs[i].Status = JobRunning
		js.jobs[i].TimeStarted = &tStart

		ctx, cancel := context.WithCancel(context.Background())
		js.cancel = cancel
		return &js.jobs[i], ctx
	}
	return nil, nil
}

func (js *JobSched) runJob(job *Job, ctx context.Context) {
	status := JobCompleted
	errText := ""

	for _, line := range job.Lines {
		sub := js.submitter()
		if sub == nil {
			status, errText = JobFailed, "controller link lost"
			break
		}
		resp, err := sub.Submit(ctx, grbl.Line(line))
		if ctx.Err() != nil {
			status = JobCanceled
			break
		}
		if err != nil {
			status, errText = JobFailed, err.Error()
			break
		}
		if !resp.Ok {
			status, errText = JobFailed, fmt.Sprintf("%q: %s", line, resp.ErrorText())
			break
		}
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	js.cancel = nil
	// Cancellation may have landed after the last line went through.
	if job.Status == JobCanceled {
		return
	}
	tEnd := time.Now().Local()
	job.Status = status
	job.Error = errText
	job.TimeEnded = &tEnd
}

// AddJob queues a program. Only one pending job is allowed at a time.
func (js *JobSched) AddJob(lines []string) (string, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.findPendingJobUnsafe() != nil {
		return "", false
	}

	job := Job{
		ID:        js.issueNewJobIDUnsafe(),
		Lines:     lines,
		Status:    JobWaiting,
		TimeAdded: time.Now().Local(),
	}
	js.jobs = append(js.jobs, job)
	return job.ID, true
}

// ListJobs returns a snapshot of all jobs.
func (js *JobSched) ListJobs() []Job {
	js.mu.Lock()
	defer js.mu.Unlock()

	jobs := make([]Job, len(js.jobs))
	for i, job := range js.jobs {
		jobs[i] = copyJobUnsafe(job)
	}
	return jobs
}

// creates deep copy of job. Immutable fields are shallow copied.
func copyJobUnsafe(job Job) Job {
	newJob := job
	if job.TimeStarted != nil {
		t := *job.TimeStarted
		newJob.TimeStarted = &t
	}
	if job.TimeEnded != nil {
		t := *job.TimeEnded
		newJob.TimeEnded = &t
	}
	return newJob
}

// CancelJob cancels the pending job, if any. A running job stops after
// the line currently in flight.
func (js *JobSched) CancelJob() bool {
	js.mu.Lock()
	defer js.mu.Unlock()

	job := js.findPendingJobUnsafe()
	if job == nil {
		return false
	}

	job.Status = JobCanceled
	tEnd := time.Now().Local()
	job.TimeEnded = &tEnd
	if js.cancel != nil {
		js.cancel()
	}
	return true
}

// HasPendingJob reports whether a job is waiting or running.
func (js *JobSched) HasPendingJob() bool {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.findPendingJobUnsafe() != nil
}
