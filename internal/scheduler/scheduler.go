// Package scheduler adapts gocron to the engine's job port. Jobs are keyed
// by a stable ID so the lifecycle can re-derive them after a restart:
// scheduling an existing ID replaces the previous job.
package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"atos/internal/ports/output"
)

var _ output.Scheduler = (*Scheduler)(nil)

type Scheduler struct {
	sched gocron.Scheduler

	mu   sync.Mutex
	jobs map[string]gocron.Job
}

func New() (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()
	return &Scheduler{sched: sched, jobs: map[string]gocron.Job{}}, nil
}

// RunAt schedules task to run once at the given time. A time already in the
// past fires the job immediately.
func (s *Scheduler) RunAt(id string, at time.Time, task func()) {
	start := gocron.OneTimeJobStartDateTime(at)
	if !at.After(time.Now()) {
		start = gocron.OneTimeJobStartImmediately()
	}
	s.replace(id, gocron.OneTimeJob(start), task)
}

// RunEvery schedules task on a fixed interval, first run after one interval.
func (s *Scheduler) RunEvery(id string, every time.Duration, task func()) {
	s.replace(id, gocron.DurationJob(every), task)
}

func (s *Scheduler) replace(id string, def gocron.JobDefinition, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.jobs[id]; ok {
		if err := s.sched.RemoveJob(prev.ID()); err != nil {
			log.Printf("⚠️ Remplacement de la tâche %s: %v", id, err)
		}
		delete(s.jobs, id)
	}

	job, err := s.sched.NewJob(def, gocron.NewTask(task), gocron.WithName(id))
	if err != nil {
		log.Printf("❌ Planification de la tâche %s: %v", id, err)
		return
	}
	s.jobs[id] = job
}

// Cancel removes the job; unknown IDs are ignored.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return
	}
	if err := s.sched.RemoveJob(job.ID()); err != nil {
		log.Printf("⚠️ Annulation de la tâche %s: %v", id, err)
	}
	delete(s.jobs, id)
}

// Shutdown stops the scheduler and waits for running jobs to return.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
