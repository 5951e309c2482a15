// Package queue is a bounded job queue with a fixed pool of worker
// goroutines. The scheduler uses it as its parallelism lane.
package queue

import "sync"

type Job struct {
	Run    func() error
	OnFail func(error)
}

type Queue struct {
	jobs    chan Job
	workers int
	wg      sync.WaitGroup
}

func NewQueue(size, workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		jobs:    make(chan Job, size),
		workers: workers,
	}
}

// Enqueue offers a job without blocking; it reports false when the
// queue is full.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

func (q *Queue) Start() {
	for range q.workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				if err := job.Run(); err != nil {
					if job.OnFail != nil {
						job.OnFail(err)
					}
				}
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight jobs to drain.
func (q *Queue) Stop() {
	close(q.jobs)
	q.wg.Wait()
}
