package core

import (
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

var ErrJobNotFound = errors.New("job not found")

// MemoryDB keeps every job of the process in memory. Updates arrive through
// the DB channel as job clones.
type MemoryDB struct {
	dbMap  map[string]Job
	dbChan <-chan Job
	mu     sync.RWMutex
}

func (d *MemoryDB) Setup(dbc DBChan, c *Conf) error {
	d.dbMap = make(map[string]Job)
	d.dbChan = dbc
	go func() {
		for job := range d.dbChan {
			zap.L().Debug(fmt.Sprintf("[MemoryDB] received %s/status:%s", job.JobData().ID, job.JobData().Status))
			if err := d.Update(job); err != nil {
				zap.L().Error(fmt.Sprintf("failed to update a job(%s)/reason:%s", job.JobData().ID, err))
			}
		}
		zap.L().Debug("[MemoryDB] DB channel is closed")
	}()
	return nil
}

func (d *MemoryDB) Insert(j Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := j.JobData().ID
	if _, ok := d.dbMap[id]; ok {
		return errors.Wrap(ErrorJobIDConflict, id)
	}
	d.dbMap[id] = j
	return nil
}

func (d *MemoryDB) Get(jobID string) (Job, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if val, ok := d.dbMap[jobID]; ok {
		return val, nil
	}
	err := errors.Wrap(ErrJobNotFound, jobID)
	zap.L().Info("[MemoryDB]", zap.Error(err))
	return &NormalJob{}, err
}

// Update never turns a final job back into a running one. Clones sent by the
// scheduler can arrive after a cancellation.
func (d *MemoryDB) Update(j Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := j.JobData().ID
	if old, ok := d.dbMap[id]; ok && old.JobData().Status.IsFinal() && !j.JobData().Status.IsFinal() {
		zap.L().Debug(fmt.Sprintf("[MemoryDB] ignored stale update of %s/status:%s", id, j.JobData().Status))
		return nil
	}
	d.dbMap[id] = j
	return nil
}

func (d *MemoryDB) Delete(jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dbMap[jobID]; ok {
		delete(d.dbMap, jobID)
		zap.L().Info(fmt.Sprintf("[MemoryDB] deleted %s from DB", jobID))
		return nil
	}
	err := errors.Wrap(ErrJobNotFound, jobID)
	zap.L().Info("[MemoryDB]", zap.Error(err))
	return err
}

func (d *MemoryDB) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.dbMap)
}

// List returns the jobs in no particular order.
func (d *MemoryDB) List() []Job {
	d.mu.RLock()
	defer d.mu.RUnlock()
	jobs := make([]Job, 0, len(d.dbMap))
	for _, j := range d.dbMap {
		jobs = append(jobs, j)
	}
	return jobs
}
