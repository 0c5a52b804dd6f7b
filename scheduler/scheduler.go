package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/bitorder/core"
	"go.uber.org/zap"
)

var ErrJobRunning = errors.New("job is already running")

type statusManager interface {
	Update(job core.Job, status core.Status)
	Delete(jobID string)
	Get(jobID string) []core.Status
}

// historyManager records every status a job passes through in the
// scheduler. The history is only used for debug logging.
type historyManager struct {
	history map[string][]core.Status
	mu      sync.RWMutex
}

func newHistoryManager() *historyManager {
	return &historyManager{history: make(map[string][]core.Status)}
}

func (h *historyManager) Update(job core.Job, status core.Status) {
	job.JobData().Status = status
	h.mu.Lock()
	defer h.mu.Unlock()
	id := job.JobData().ID
	h.history[id] = append(h.history[id], status)
}

func (h *historyManager) Delete(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.history, jobID)
}

func (h *historyManager) Get(jobID string) []core.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]core.Status(nil), h.history[jobID]...)
}

// NormalScheduler runs jobs one at a time on the QPU. Pre- and
// post-processing run on the handler goroutine of each job, Process runs on
// the single worker.
type NormalScheduler struct {
	queue         *NormalQueue
	statusManager statusManager

	runningMu sync.Mutex
	running   string

	cancel context.CancelFunc
	done   chan struct{}
}

type jobInScheduler struct {
	job      core.Job
	finished *sync.WaitGroup
}

func (n *NormalScheduler) Setup(conf *core.Conf) error {
	n.queue = &NormalQueue{}
	if err := n.queue.Setup(conf); err != nil {
		return err
	}
	n.statusManager = newHistoryManager()
	return nil
}

func (n *NormalScheduler) Start() error {
	if n.queue == nil {
		return fmt.Errorf("scheduler is not set up")
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	go func() {
		defer close(n.done)
		n.work(ctx)
	}()
	return nil
}

func (n *NormalScheduler) work(ctx context.Context) {
	for {
		zap.L().Debug("checking the queue...")
		jis, err := n.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				zap.L().Debug("scheduler worker is stopped")
				return
			}
			zap.L().Error(fmt.Sprintf("failed to get a job from queue/reason:%s", err))
			continue
		}
		n.process(jis)
	}
}

func (n *NormalScheduler) process(jis *jobInScheduler) {
	j := jis.job
	jid := j.JobData().ID
	defer jis.finished.Done()
	defer n.setRunning("")
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in processing job(%s): %v", jid, r)
			zap.L().Error(err.Error())
			core.SetFailureWithError(j, err)
		}
	}()

	zap.L().Debug(fmt.Sprintf("processing job:%s", jid))
	n.setRunning(jid)
	n.statusManager.Update(j, core.RUNNING)
	j.JobContext().DBChan <- j.Clone()
	j.Process()
	zap.L().Debug(fmt.Sprintf("finished to process job(%s)/status:%s", jid, j.JobData().Status))
}

func (n *NormalScheduler) setRunning(jobID string) {
	n.runningMu.Lock()
	defer n.runningMu.Unlock()
	n.running = jobID
}

func (n *NormalScheduler) isRunning(jobID string) bool {
	n.runningMu.Lock()
	defer n.runningMu.Unlock()
	return n.running == jobID
}

func (n *NormalScheduler) HandleJob(j core.Job) {
	zap.L().Debug(fmt.Sprintf("starting to handle job(%s) in %s", j.JobData().ID, j.JobData().Status))
	go func() {
		defer func() {
			jid := j.JobData().ID
			zap.L().Debug(fmt.Sprintf("status history job(%s): %v", jid, n.statusManager.Get(jid)))
			n.statusManager.Delete(jid)
		}()
		n.handleImpl(j)
	}()
}

func (n *NormalScheduler) HandleJobForTest(j core.Job, wg *sync.WaitGroup) {
	go func() {
		defer wg.Done()
		n.handleImpl(j)
	}()
}

func (n *NormalScheduler) handleImpl(j core.Job) {
	jid := j.JobData().ID
	for {
		st := j.JobData().Status
		n.statusManager.Update(j, st)
		zap.L().Debug(fmt.Sprintf("handling job(%s) in %s starting", jid, st))
		if st != core.READY {
			zap.L().Error(fmt.Sprintf("finished to handle job(%s) with unexpected status:%s", jid, st))
			return
		}

		zap.L().Debug(fmt.Sprintf("handling job(%s). start pre-processing", jid))
		j.PreProcess()
		j.JobContext().DBChan <- j.Clone()
		if j.IsFinished() {
			zap.L().Debug(fmt.Sprintf("finished to handle job(%s) after pre-processing", jid))
			n.statusManager.Update(j, j.JobData().Status)
			return
		}

		var wg sync.WaitGroup
		wg.Add(1)
		if err := n.queue.Put(&jobInScheduler{job: j, finished: &wg}); err != nil {
			core.SetFailureWithError(j, err)
			n.statusManager.Update(j, j.JobData().Status)
			j.JobContext().DBChan <- j.Clone()
			return
		}
		wg.Wait()
		zap.L().Debug(fmt.Sprintf("processed job(%s)/status:%s", jid, j.JobData().Status))
		if j.IsFinished() {
			zap.L().Debug(fmt.Sprintf("finished to handle job(%s) after processing with status:%s", jid, j.JobData().Status))
			n.statusManager.Update(j, j.JobData().Status)
			j.JobContext().DBChan <- j.Clone()
			return
		}

		zap.L().Debug(fmt.Sprintf("handling job(%s). start post-processing", jid))
		j.PostProcess()
		if j.IsFinished() {
			zap.L().Debug(fmt.Sprintf("finished to handle job(%s) after post-processing with status:%s", jid, j.JobData().Status))
			n.statusManager.Update(j, j.JobData().Status)
			j.JobContext().DBChan <- j.Clone()
			return
		}
		zap.L().Debug(fmt.Sprintf("one more loop for job(%s)", jid))
	}
}

// CancelJob cancels a job that is still waiting in the queue. A job on the
// QPU cannot be cancelled.
func (n *NormalScheduler) CancelJob(jobID string) error {
	jis, err := n.queue.Delete(jobID)
	if err != nil {
		if n.isRunning(jobID) {
			return errors.Wrap(ErrJobRunning, jobID)
		}
		return err
	}
	jis.job.JobData().Status = core.CANCELLED
	zap.L().Info(fmt.Sprintf("cancelled job(%s)", jobID))
	jis.finished.Done()
	return nil
}

// TearDown stops the worker. Jobs left in the queue are not processed.
func (n *NormalScheduler) TearDown() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
	if n.queue != nil && n.queue.GetCurrentSize() > 0 {
		zap.L().Info(fmt.Sprintf("dropped %d queued jobs", n.queue.GetCurrentSize()))
	}
	n.cancel = nil
}

func (n *NormalScheduler) GetCurrentQueueSize() int {
	return n.queue.GetCurrentSize()
}

func (n *NormalScheduler) IsOverRefillThreshold() bool {
	return n.queue.IsOverRefillThreshold()
}
