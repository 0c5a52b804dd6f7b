package scheduler

import (
	"context"
	"fmt"
	"sync"

	conq "github.com/enriquebris/goconcurrentqueue"
	"github.com/go-faster/errors"
	"github.com/oqtopus-team/bitorder/core"
	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("normal queue is full")
	ErrNotInQueue  = errors.New("job is not in the queue")
	ErrEmptyQueue  = errors.New("empty queue")
	ErrUnknownItem = errors.New("unexpected item in the queue")
)

type fifo interface {
	Enqueue(*jobInScheduler) error
	Dequeue() (*jobInScheduler, error)
	DequeueOrWaitForNextElementContext(context.Context) (*jobInScheduler, error)
	Get(index int) (*jobInScheduler, error)
	GetLen() int
	Remove(index int) error
}

type conqFIFO struct {
	*conq.FIFO
}

func newConqFIFO() *conqFIFO {
	return &conqFIFO{
		FIFO: conq.NewFIFO(),
	}
}

func (c *conqFIFO) Enqueue(js *jobInScheduler) error {
	return c.FIFO.Enqueue(js)
}

func (c *conqFIFO) Dequeue() (*jobInScheduler, error) {
	tmp, err := c.FIFO.Dequeue()
	if err != nil {
		return nil, ErrEmptyQueue
	}
	return asJobInScheduler(tmp)
}

func (c *conqFIFO) DequeueOrWaitForNextElementContext(ctx context.Context) (*jobInScheduler, error) {
	tmp, err := c.FIFO.DequeueOrWaitForNextElementContext(ctx)
	if err != nil {
		return nil, err
	}
	return asJobInScheduler(tmp)
}

func (c *conqFIFO) Get(index int) (*jobInScheduler, error) {
	tmp, err := c.FIFO.Get(index)
	if err != nil {
		return nil, err
	}
	return asJobInScheduler(tmp)
}

func asJobInScheduler(v interface{}) (*jobInScheduler, error) {
	jis, ok := v.(*jobInScheduler)
	if !ok {
		return nil, errors.Wrap(ErrUnknownItem, fmt.Sprintf("%T", v))
	}
	return jis, nil
}

// NormalQueue is a bounded FIFO of jobs waiting for the QPU.
// Put and Delete hold mu so that the size check and the index lookup are
// not interleaved with other writers.
type NormalQueue struct {
	fifo            fifo
	maxSize         int
	refillThreshold int
	mu              sync.Mutex
}

func (n *NormalQueue) Setup(conf *core.Conf) error {
	if conf.QueueMaxSize <= 0 {
		return fmt.Errorf("queue max size must be positive, got %d", conf.QueueMaxSize)
	}
	n.refillThreshold = conf.QueueRefillThreshold
	n.maxSize = conf.QueueMaxSize
	n.fifo = newConqFIFO()
	return nil
}

func (n *NormalQueue) Put(jis *jobInScheduler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := jis.job.JobData().ID
	if n.maxSize <= n.fifo.GetLen() {
		zap.L().Info(fmt.Sprintf("failed to put %s/reason:normal queue is full", id))
		return errors.Wrap(ErrQueueFull, id)
	}
	zap.L().Debug(fmt.Sprintf("putting %s to normal queue", id))
	if err := n.fifo.Enqueue(jis); err != nil {
		zap.L().Error(fmt.Sprintf("failed to put %s to normal queue/reason:%s", id, err))
		return err
	}
	return nil
}

// Dequeue blocks until a job is queued or ctx is done.
func (n *NormalQueue) Dequeue(ctx context.Context) (*jobInScheduler, error) {
	jis, err := n.fifo.DequeueOrWaitForNextElementContext(ctx)
	if err != nil {
		zap.L().Debug("no job in normal queue", zap.Error(err))
		return nil, err
	}
	zap.L().Debug(fmt.Sprintf("dequeued job:%s", jis.job.JobData().ID))
	return jis, nil
}

// TryDequeue returns ErrEmptyQueue instead of waiting.
func (n *NormalQueue) TryDequeue() (*jobInScheduler, error) {
	return n.fifo.Dequeue()
}

// Delete removes the job from the queue and returns its entry.
func (n *NormalQueue) Delete(jobID string) (*jobInScheduler, error) {
	zap.L().Debug(fmt.Sprintf("deleting %s from normal queue", jobID))
	n.mu.Lock()
	defer n.mu.Unlock()
	idx, jis, err := n.find(jobID)
	if err != nil {
		zap.L().Info(fmt.Sprintf("failed to delete %s/reason:%s", jobID, err))
		return nil, err
	}
	if err := n.fifo.Remove(idx); err != nil {
		zap.L().Error(fmt.Sprintf("failed to remove idx:%d/reason:%s", idx, err))
		return nil, err
	}
	return jis, nil
}

func (n *NormalQueue) IsOverRefillThreshold() bool {
	return n.refillThreshold <= n.fifo.GetLen()
}

func (n *NormalQueue) GetCurrentSize() int {
	return n.fifo.GetLen()
}

func (n *NormalQueue) find(jobID string) (int, *jobInScheduler, error) {
	for i := 0; i < n.fifo.GetLen(); i++ {
		js, err := n.fifo.Get(i)
		if err == nil && js.job.JobData().ID == jobID {
			return i, js, nil
		}
	}
	return 0, nil, errors.Wrap(ErrNotInQueue, jobID)
}
