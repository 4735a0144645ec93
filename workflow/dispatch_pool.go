package workflow

import (
	"context"
	"hash/fnv"
)

// dispatchPool partitions work by a string key (the workflow id) across a
// fixed set of worker goroutines, so that at most one operation runs per
// workflow instance at a time (spec §5's per-workflow serialization) while
// distinct workflows progress concurrently on different partitions.
//
// Adapted from orchestrate/workflows/parallel.go's ProcessParallel worker
// pool: same fixed-worker-count-plus-channel shape, retargeted from a
// batch item processor to a keyed job submitter so callers can route many
// independent submissions over the run of the engine rather than one
// batch at a time.
type dispatchPool struct {
	jobs []chan dispatchJob
}

type dispatchJob struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan<- error
}

// newDispatchPool starts n worker goroutines, each draining its own job
// channel in partition order.
func newDispatchPool(n int) *dispatchPool {
	if n < 1 {
		n = 1
	}
	p := &dispatchPool{jobs: make([]chan dispatchJob, n)}
	for i := range p.jobs {
		p.jobs[i] = make(chan dispatchJob, 64)
		go p.runWorker(p.jobs[i])
	}
	return p
}

func (p *dispatchPool) runWorker(jobs <-chan dispatchJob) {
	for job := range jobs {
		job.result <- job.fn(job.ctx)
	}
}

// submit runs fn on the worker partitioned by key and blocks for its
// result. Two submissions with the same key never run concurrently;
// submissions with different keys may.
func (p *dispatchPool) submit(ctx context.Context, key string, fn func(context.Context) error) error {
	result := make(chan error, 1)
	job := dispatchJob{ctx: ctx, fn: fn, result: result}

	idx := partitionIndex(key, len(p.jobs))
	select {
	case p.jobs[idx] <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func partitionIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % n
}
