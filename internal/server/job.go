package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/photonforge/couplerfit/internal/config"
)

// JobState represents the current state of an optimization job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// Job represents one optimization run managed by the server.
type Job struct {
	ID         string        `json:"id"`
	State      JobState      `json:"state"`
	Config     config.Config `json:"config"`
	Design     []float64     `json:"design,omitempty"`
	Epigraph   float64       `json:"epigraph"`
	Objectives []float64     `json:"objectives,omitempty"`
	Iterations int           `json:"iterations"`
	Converged  bool          `json:"converged"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    *time.Time    `json:"endTime,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// JobManager manages the lifecycle of jobs.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a new pending job for the given configuration.
func (jm *JobManager) CreateJob(cfg config.Config) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    cfg,
		StartTime: time.Now(),
	}
	jm.jobs[job.ID] = job
	return job
}

// GetJob retrieves a snapshot of a job by ID.
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// ListJobs returns snapshots of all jobs.
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// UpdateJob applies fn to the job under the manager lock.
func (jm *JobManager) UpdateJob(id string, fn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	fn(job)
	return nil
}

// Broadcaster exposes the SSE event fan-out for this manager's jobs.
func (jm *JobManager) Broadcaster() *EventBroadcaster {
	return jm.broadcaster
}
