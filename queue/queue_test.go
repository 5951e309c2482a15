package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueRunsJobs(t *testing.T) {
	q := NewQueue(10, 2)

	var ran atomic.Int32
	var wg sync.WaitGroup

	q.Start()
	for range 5 {
		wg.Add(1)
		ok := q.Enqueue(Job{
			Run: func() error {
				defer wg.Done()
				ran.Add(1)
				return nil
			},
		})
		assert.True(t, ok)
	}

	wg.Wait()
	q.Stop()

	assert.Equal(t, int32(5), ran.Load())
}

func TestQueueOnFail(t *testing.T) {
	q := NewQueue(1, 1)

	failed := make(chan error, 1)
	q.Enqueue(Job{
		Run:    func() error { return errors.New("boom") },
		OnFail: func(err error) { failed <- err },
	})

	q.Start()
	err := <-failed
	q.Stop()

	assert.EqualError(t, err, "boom")
}

func TestEnqueueFullQueue(t *testing.T) {
	q := NewQueue(1, 1)

	// not started, so the first job sits in the buffer
	assert.True(t, q.Enqueue(Job{Run: func() error { return nil }}))
	assert.False(t, q.Enqueue(Job{Run: func() error { return nil }}))
}
