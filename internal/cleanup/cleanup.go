package cleanup

import (
	"context"
	"log"
	"os"
	"sync"
)

// Job names the filesystem artifacts left behind by a committed destructive
// transaction. ActionID ties the work back to its audit record.
type Job struct {
	ActionID string
	Paths    []string
}

// Worker removes orphaned files in the background. Deleting the rows and
// deleting the files are deliberately decoupled: the database transaction has
// already committed by the time a job is enqueued, and a missing or
// undeletable file must never fail the reset, so each path is removed
// best-effort and failures are only logged.
type Worker struct {
	jobs chan Job
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewWorker(queueSize int) *Worker {
	if queueSize < 1 {
		queueSize = 64
	}
	return &Worker{jobs: make(chan Job, queueSize)}
}

func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case job, ok := <-w.jobs:
					if !ok {
						return
					}
					w.run(job)
				case <-ctx.Done():
					w.drain()
					return
				}
			}
		}()
	})
}

// Stop closes the queue and waits for queued jobs to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.jobs) })
	w.wg.Wait()
}

// Enqueue hands a job to the worker. If the queue is full the job runs
// inline; the caller has already committed, so the files must still go.
func (w *Worker) Enqueue(job Job) {
	if len(job.Paths) == 0 {
		return
	}
	select {
	case w.jobs <- job:
	default:
		w.run(job)
	}
}

func (w *Worker) drain() {
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.run(job)
		default:
			return
		}
	}
}

func (w *Worker) run(job Job) {
	removed, missing, failed := 0, 0, 0
	for _, path := range job.Paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
			missing++
		default:
			failed++
			log.Printf("[cleanup] WARN: remove %s (action %s): %v", path, job.ActionID, err)
		}
	}
	log.Printf("[cleanup] action %s: removed=%d missing=%d failed=%d", job.ActionID, removed, missing, failed)
}
