package pipeline

import (
	"sync"
	"time"
)

// JobStatus represents the state of a page-processing job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
)

// Job tracks the rasterize-and-deskew pass over one uploaded document.
// ID is the task id.
type Job struct {
	mu sync.Mutex

	ID       string    `json:"task_id"`
	Filename string    `json:"filename"`
	Status   JobStatus `json:"status"`
	Progress Progress  `json:"progress"`
	Error    string    `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData   []byte
	cancelled  chan struct{}
	cancelOnce sync.Once
}

// Progress counts processed pages.
type Progress struct {
	TotalPages     int `json:"total_pages"`
	PagesProcessed int `json:"pages_processed"`
	PagesRotated   int `json:"pages_rotated"`
}

// NewJob creates a pending job for the uploaded PDF.
func NewJob(id, filename string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		Filename:  filename,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
		cancelled: make(chan struct{}),
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *JobStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Cleanup removes finished jobs older than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := now.Sub(job.UpdatedAt) > s.ttl && (job.Status == StatusDone || job.Status == StatusError)
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.UpdatedAt = time.Now()
}

// Fail moves the job to the error state with msg and releases the upload.
func (j *Job) Fail(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusError
	j.Error = msg
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// Finish marks the job done and releases the upload.
func (j *Job) Finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusDone
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// SetTotalPages records the page count.
func (j *Job) SetTotalPages(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalPages = n
	j.UpdatedAt = time.Now()
}

// PageDone counts one stored page.
func (j *Job) PageDone(rotated bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PagesProcessed++
	if rotated {
		j.Progress.PagesRotated++
	}
	j.UpdatedAt = time.Now()
}

// Cancel tells the worker to stop processing the job. It is safe to call
// more than once.
func (j *Job) Cancel() {
	j.cancelOnce.Do(func() { close(j.cancelled) })
}

// Cancelled is closed once Cancel has been called.
func (j *Job) Cancelled() <-chan struct{} {
	return j.cancelled
}

func (j *Job) isCancelled() bool {
	select {
	case <-j.cancelled:
		return true
	default:
		return false
	}
}

// FileData returns the raw PDF bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID       string    `json:"task_id"`
	Filename string    `json:"filename"`
	Status   JobStatus `json:"status"`
	Progress Progress  `json:"progress"`
	Error    string    `json:"error_message,omitempty"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:       j.ID,
		Filename: j.Filename,
		Status:   j.Status,
		Progress: j.Progress,
		Error:    j.Error,
	}
}
