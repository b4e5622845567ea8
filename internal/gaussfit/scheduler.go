package gaussfit

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// tasksPerWorker is the task fan-out factor: many more tasks than workers
// amortizes dispatch overhead while keeping per-task latency low enough for
// responsive progress reporting.
const tasksPerWorker = 100

// SchedulerConfig controls a parallel fitting run. The zero value selects
// the defaults.
type SchedulerConfig struct {
	// Workers is the worker pool size. Default max(1, 3*NumCPU/4), leaving
	// headroom for the controlling process and system load.
	Workers int
	// Fit is the per-spot fit configuration shared by all workers.
	Fit FitConfig
	// Progress, when set, is called once per completed task with the number
	// of completed tasks so far and the total task count. Calls are made
	// from the scheduling goroutine in completion order; progress never
	// affects results or ordering. Only the synchronous entry point drives
	// progress.
	Progress func(completed, total int)
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers()
	}
	return c
}

// DefaultWorkers returns the default worker pool size:
// max(1, floor(0.75 * NumCPU)).
func DefaultWorkers() int {
	return max(1, 3*runtime.NumCPU()/4)
}

// PartitionTasks splits n items into t contiguous ordered ranges whose sizes
// differ by at most one and sum exactly to n. The first n mod t tasks carry
// the extra item. Sizes may be zero when n < t.
func PartitionTasks(n, t int) []int {
	sizes := make([]int, t)
	base := n / t
	extra := n % t
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}

// Task is a pending unit of parallel fitting work: a contiguous sub-range of
// the spot collection owned by one worker. Wait blocks until the task
// finishes and returns its slice of the parameter matrix (nil for an empty
// task) or the error that failed it.
type Task struct {
	Start int
	Count int

	done  chan struct{}
	theta *mat.Dense
	err   error
}

// Wait blocks until the task has been executed.
func (t *Task) Wait() (*mat.Dense, error) {
	<-t.done
	return t.theta, t.err
}

// run executes the task's slice, converting a worker panic into a task
// error so one poisoned task cannot take down the pool.
func (t *Task) run(spots []Spot, cfg FitConfig) {
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("spots [%d:%d): fit panic: %v", t.Start, t.Start+t.Count, r)
		}
	}()
	t.theta = FitSpotsConfig(spots[t.Start:t.Start+t.Count], cfg)
}

// launch partitions the spots, starts the worker pool and submits every
// task. The returned tasks are in submission (spot index) order; completed
// reports each task as it finishes and is closed when all are done.
func launch(spots []Spot, cfg SchedulerConfig) (tasks []*Task, completed chan *Task) {
	nTasks := tasksPerWorker * cfg.Workers
	sizes := PartitionTasks(len(spots), nTasks)

	tasks = make([]*Task, nTasks)
	start := 0
	for i, size := range sizes {
		tasks[i] = &Task{Start: start, Count: size, done: make(chan struct{})}
		start += size
	}

	queue := make(chan *Task)
	completed = make(chan *Task, nTasks)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				t.run(spots, cfg.Fit)
				close(t.done)
				completed <- t
			}
		}()
	}
	go func() {
		for _, t := range tasks {
			queue <- t
		}
		close(queue)
		wg.Wait()
		close(completed)
	}()
	return tasks, completed
}

// FitSpotsParallel fits all spots across the worker pool and blocks until
// the assembled N x 6 parameter matrix is complete. Row order always matches
// input spot order regardless of task completion order. Any failed task
// fails the whole call.
func FitSpotsParallel(spots []Spot, cfg SchedulerConfig) (*mat.Dense, error) {
	cfg = cfg.withDefaults()
	tasks, completed := launch(spots, cfg)
	n := 0
	for range completed {
		n++
		if cfg.Progress != nil {
			cfg.Progress(n, len(tasks))
		}
	}
	return FitsFromTasks(tasks)
}

// FitSpotsAsync submits all fitting tasks and returns their handles
// immediately, in spot index order. The caller aggregates later with
// FitsFromTasks, or waits on individual handles to layer cancellation or
// timeouts externally.
func FitSpotsAsync(spots []Spot, cfg SchedulerConfig) []*Task {
	cfg = cfg.withDefaults()
	tasks, completed := launch(spots, cfg)
	// Drain completions so the pool can wind down once all handles are done.
	go func() {
		for range completed {
		}
	}()
	return tasks
}

// FitsFromTasks blocks until every task has finished and concatenates their
// results in task submission order into one N x 6 matrix. If any task
// failed, the error identifies it and no matrix is returned; completed
// tasks keep their results on their handles.
func FitsFromTasks(tasks []*Task) (*mat.Dense, error) {
	n := 0
	for _, t := range tasks {
		n += t.Count
	}
	var theta *mat.Dense
	if n > 0 {
		theta = mat.NewDense(n, ThetaLen, nil)
	}
	var firstErr error
	for i, t := range tasks {
		part, err := t.Wait()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("task %d: %w", i, err)
			}
			continue
		}
		if t.Count == 0 {
			continue
		}
		if part == nil {
			// A non-empty task must produce a matrix; treat a missing one
			// like a failed fit and leave NaN rows.
			for r := t.Start; r < t.Start+t.Count; r++ {
				for c := 0; c < ThetaLen; c++ {
					theta.Set(r, c, math.NaN())
				}
			}
			continue
		}
		for r := 0; r < t.Count; r++ {
			theta.SetRow(t.Start+r, part.RawRowView(r))
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return theta, nil
}
