//go:build unit
// +build unit

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setUpTestNormalQueue(t *testing.T, maxSize int) *NormalQueue {
	n := &NormalQueue{}
	require.NoError(t, n.Setup(&core.Conf{QueueMaxSize: maxSize, QueueRefillThreshold: 2}))
	return n
}

func TestNormalQueueSetup(t *testing.T) {
	n := &NormalQueue{}
	assert.Error(t, n.Setup(&core.Conf{}))
}

func TestPutNormalQueue(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()
	n := setUpTestNormalQueue(t, 1000)

	require.NoError(t, n.Put(newjobInScheduler(t, "test1")))
	assert.Equal(t, 1, n.GetCurrentSize())
	js, err := n.TryDequeue()
	assert.Nil(t, err)
	assert.Equal(t, "test1", js.job.JobData().ID)
}

func TestNormalQueueFull(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()
	n := setUpTestNormalQueue(t, 2)

	require.NoError(t, n.Put(newjobInScheduler(t, "test1")))
	assert.False(t, n.IsOverRefillThreshold())
	require.NoError(t, n.Put(newjobInScheduler(t, "test2")))
	assert.True(t, n.IsOverRefillThreshold())
	err := n.Put(newjobInScheduler(t, "test3"))
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, 2, n.GetCurrentSize())
}

func TestNormalQueueDelete(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()
	n := setUpTestNormalQueue(t, 1000)

	for _, id := range []string{"test1", "test2", "test3", "test4"} {
		require.NoError(t, n.Put(newjobInScheduler(t, id)))
	}
	assert.Equal(t, 4, n.GetCurrentSize())

	deleted, err := n.Delete("test3")
	require.NoError(t, err)
	assert.Equal(t, "test3", deleted.job.JobData().ID)
	assert.Equal(t, 3, n.GetCurrentSize())

	_, err = n.Delete("test3")
	assert.True(t, errors.Is(err, ErrNotInQueue))

	for _, want := range []string{"test1", "test2", "test4"} {
		jis, err := n.TryDequeue()
		assert.Nil(t, err)
		assert.Equal(t, want, jis.job.JobData().ID)
	}

	jis, err := n.TryDequeue()
	assert.True(t, errors.Is(err, ErrEmptyQueue))
	assert.Nil(t, jis)
}

func TestNormalQueueDequeueWaits(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()
	n := setUpTestNormalQueue(t, 1000)

	got := make(chan string, 1)
	go func() {
		jis, err := n.Dequeue(context.Background())
		if err == nil {
			got <- jis.job.JobData().ID
		}
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, n.Put(newjobInScheduler(t, "late")))
	select {
	case id := <-got:
		assert.Equal(t, "late", id)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return")
	}
}

func TestNormalQueueDequeueCancelled(t *testing.T) {
	n := setUpTestNormalQueue(t, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jis, err := n.Dequeue(ctx)
	assert.Error(t, err)
	assert.Nil(t, jis)
}

func newjobInScheduler(t *testing.T, id string) *jobInScheduler {
	jm, err := core.NewJobManager(&core.NormalJob{})
	assert.Nil(t, err)
	jc, err := core.NewJobContext()
	assert.Nil(t, err)
	nj, err := jm.NewJobFromJobData(&core.JobData{ID: id}, jc)
	assert.Nil(t, err)
	return &jobInScheduler{
		job: nj,
	}
}
