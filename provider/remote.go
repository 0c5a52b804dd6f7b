package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/result"
	"github.com/oqtopus-team/bitorder/transpiler"
	"go.uber.org/zap"
)

// RemoteBackend is a device of the remote API.
type RemoteBackend struct {
	provider *Provider
	config   *backend.Configuration
}

func (b *RemoteBackend) Name() string {
	return b.config.BackendName
}

func (b *RemoteBackend) Configuration() *backend.Configuration {
	return b.config
}

func (b *RemoteBackend) Status(ctx context.Context) (*backend.Status, error) {
	return b.provider.conn.BackendStatus(ctx, b.Name())
}

func (b *RemoteBackend) Properties(ctx context.Context) (*backend.Properties, error) {
	return b.provider.conn.BackendProperties(ctx, b.Name())
}

func (b *RemoteBackend) Run(ctx context.Context, q *transpiler.Qobj) (backend.Job, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if b.config.MaxShots > 0 && q.Config.Shots > b.config.MaxShots {
		return nil, fmt.Errorf("shots(%d) is over the limit(%d) of %s", q.Config.Shots, b.config.MaxShots, b.Name())
	}
	info, err := b.provider.conn.RunJob(ctx, q, b.Name())
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to submit qobj(%s) to %s/reason:%s", q.QobjID, b.Name(), err))
		return nil, err
	}
	zap.L().Info(fmt.Sprintf("submitted job(%s) to %s/status:%s", info.ID, b.Name(), info.Status))
	return &RemoteJob{
		id:      info.ID,
		backend: b,
		qobj:    q,
		status:  toJobStatus(info.Status),
	}, nil
}

// RemoteJob polls the API for its state.
type RemoteJob struct {
	id      string
	backend *RemoteBackend
	qobj    *transpiler.Qobj

	mu     sync.Mutex
	status backend.JobStatus
	result *result.Result
}

func (j *RemoteJob) ID() string {
	return j.id
}

func (j *RemoteJob) Status(ctx context.Context) (backend.JobStatus, error) {
	j.mu.Lock()
	if j.status.IsFinal() {
		defer j.mu.Unlock()
		return j.status, nil
	}
	j.mu.Unlock()
	info, err := j.backend.provider.conn.GetStatusJob(ctx, j.id)
	if err != nil {
		return "", err
	}
	st := toJobStatus(info.Status)
	j.mu.Lock()
	j.status = st
	j.mu.Unlock()
	if st == backend.JobStatusError {
		return st, fmt.Errorf("%w: %s is %s: %v", ErrJobFailed, j.id, info.Status, info.Error)
	}
	return st, nil
}

// Result polls the job status until it is final or timeout elapses. A zero
// timeout waits until ctx is done.
func (j *RemoteJob) Result(ctx context.Context, timeout time.Duration) (*result.Result, error) {
	j.mu.Lock()
	if j.result != nil {
		defer j.mu.Unlock()
		return j.result, nil
	}
	j.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	interval := j.backend.provider.pollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := j.Status(ctx)
		if err != nil {
			return nil, err
		}
		switch st {
		case backend.JobStatusDone:
			return j.fetchResult(ctx)
		case backend.JobStatusCancelled:
			return nil, fmt.Errorf("%w: %s was cancelled", ErrJobFailed, j.id)
		}
		select {
		case <-ticker.C:
		case <-expired:
			return nil, fmt.Errorf("%w: %s after %s", ErrJobTimeout, j.id, timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (j *RemoteJob) fetchResult(ctx context.Context) (*result.Result, error) {
	info, err := j.backend.provider.conn.GetJob(ctx, j.id)
	if err != nil {
		return nil, err
	}
	if len(info.QObjectResult) == 0 {
		return nil, fmt.Errorf("%w: %s has no result", ErrJobFailed, j.id)
	}
	res, err := result.Parse(info.QObjectResult)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if res.JobID == "" {
		res.JobID = j.id
	}
	// headers decide the count format, fall back to the submitted ones
	for i := range res.Results {
		if res.Results[i].Header.MemorySlots == 0 && i < len(j.qobj.Experiments) {
			res.Results[i].Header = j.qobj.Experiments[i].Header
		}
	}
	j.mu.Lock()
	j.result = res
	j.mu.Unlock()
	return res, nil
}

func (j *RemoteJob) Cancel(ctx context.Context) error {
	return j.backend.provider.conn.CancelJob(ctx, j.id)
}
