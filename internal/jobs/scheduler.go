package jobs

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrJobNotFound is returned by RunNow for an unregistered job name
var ErrJobNotFound = errors.New("job not found")

// Job is a periodic maintenance task
type Job interface {
	Run(ctx context.Context) error
	GetNextRunTime() time.Time
}

// JobScheduler runs registered jobs on their own timers and reschedules
// each one after it completes.
type JobScheduler struct {
	jobs    map[string]Job
	timers  map[string]*time.Timer
	status  map[string]JobStatus
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// JobStatus describes one registered job
type JobStatus struct {
	Name        string    `json:"name"`
	NextRunTime time.Time `json:"nextRunTime"`
	LastRun     time.Time `json:"lastRun,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	Runs        int       `json:"runs"`
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		jobs:   make(map[string]Job),
		timers: make(map[string]*time.Timer),
		status: make(map[string]JobStatus),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a job. Jobs registered after Start are armed immediately.
func (s *JobScheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[name] = job
	s.status[name] = JobStatus{Name: name}
	log.Printf("✅ [SCHEDULER] Registered job: %s", name)

	if s.running {
		s.scheduleLocked(name, job)
	}
}

// Start arms every registered job
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))

	for name, job := range s.jobs {
		s.scheduleLocked(name, job)
	}
}

func (s *JobScheduler) scheduleLocked(name string, job Job) {
	nextRun := job.GetNextRunTime()
	delay := time.Until(nextRun)
	if delay < 0 {
		delay = 0
	}

	st := s.status[name]
	st.NextRunTime = nextRun
	s.status[name] = st

	log.Printf("⏰ [SCHEDULER] Job '%s' scheduled for %s (in %v)", name, nextRun.Format(time.RFC3339), delay.Round(time.Second))
	s.timers[name] = time.AfterFunc(delay, func() {
		s.runJob(name, job)
	})
}

func (s *JobScheduler) runJob(name string, job Job) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	err := s.execute(name, job)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.scheduleLocked(name, job)
	}
}

func (s *JobScheduler) execute(name string, job Job) (err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [SCHEDULER] Job '%s' panicked: %v", name, r)
			err = errors.New("job panicked")
		}

		s.mu.Lock()
		st := s.status[name]
		st.LastRun = started
		st.Runs++
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
		s.status[name] = st
		s.mu.Unlock()
	}()

	return job.Run(s.ctx)
}

// Stop disarms all timers and waits for running jobs to return
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.running = false
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

// RunNow runs a job synchronously outside its schedule
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return ErrJobNotFound
	}
	return s.execute(name, job)
}

// GetStatus returns a snapshot of every registered job
func (s *JobScheduler) GetStatus() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]JobStatus, len(s.status))
	for name, st := range s.status {
		out[name] = st
	}
	return out
}
