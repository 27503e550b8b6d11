package jobs

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/amishk599/nutrilens/internal/model"
)

const defaultShards = 32

var (
	// ErrAlreadyFinished is returned when writing a terminal state to a job
	// that already has one.
	ErrAlreadyFinished = errors.New("job already finished")

	// ErrDuplicateID is returned when creating a job whose id is taken.
	ErrDuplicateID = errors.New("duplicate job id")
)

// Store is a concurrency-safe map from job id to job record. Keys are spread
// over independently locked shards. Records are held by value, so readers
// always get a consistent copy.
type Store struct {
	shards []*shard
}

type shard struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

// NewStore creates an empty store with n shards (n <= 0 selects 32).
func NewStore(n int) *Store {
	if n <= 0 {
		n = defaultShards
	}
	s := &Store{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{jobs: make(map[string]model.Job)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Create inserts a new record.
func (s *Store) Create(job model.Job) error {
	sh := s.shardFor(job.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.jobs[job.ID]; ok {
		return fmt.Errorf("create job %s: %w", job.ID, ErrDuplicateID)
	}
	sh.jobs[job.ID] = job
	return nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (model.Job, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	job, ok := sh.jobs[id]
	return job, ok
}

// Complete moves a processing job to done with result.
func (s *Store) Complete(id string, result model.EnrichmentResult, at time.Time) (model.Job, error) {
	return s.finish(id, func(j *model.Job) {
		j.Status = model.StatusDone
		j.Result = &result
		j.FinishedAt = at
	})
}

// Fail moves a processing job to error with message.
func (s *Store) Fail(id, message string, at time.Time) (model.Job, error) {
	return s.finish(id, func(j *model.Job) {
		j.Status = model.StatusError
		j.Message = message
		j.FinishedAt = at
	})
}

// finish applies the single allowed terminal transition under the shard lock.
func (s *Store) finish(id string, apply func(*model.Job)) (model.Job, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	job, ok := sh.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("finish job %s: %w", id, model.ErrJobNotFound)
	}
	if job.Status.Terminal() {
		return job, fmt.Errorf("finish job %s: %w", id, ErrAlreadyFinished)
	}
	apply(&job)
	sh.jobs[id] = job
	return job, nil
}

// Sweep deletes terminal jobs that finished before cutoff and returns how many
// were removed. Processing jobs are never removed.
func (s *Store) Sweep(cutoff time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, job := range sh.jobs {
			if job.Status.Terminal() && job.FinishedAt.Before(cutoff) {
				delete(sh.jobs, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.jobs)
		sh.mu.RUnlock()
	}
	return n
}
