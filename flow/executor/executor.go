// Package executor routes node calls onto their preferred pool: async
// work runs inline on the calling goroutine, blocking and CPU-bound work
// is offloaded to bounded worker pools. Pools are created lazily and
// torn down on engine shutdown.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

const (
	// DefaultThreadPoolSize bounds workers for blocking I/O nodes
	DefaultThreadPoolSize = 10
	// DefaultProcessPoolSize bounds workers for CPU-bound nodes
	DefaultProcessPoolSize = 4
)

// PoolExecutor owns the worker pools and dispatches each node onto the
// pool it prefers
type PoolExecutor struct {
	logger      *logger.Logger
	threadSize  int
	processSize int

	mu      sync.Mutex
	threads *workerPool
	procs   *workerPool
	closed  bool
}

// New creates a pool executor. Sizes <= 0 fall back to the defaults.
func New(log *logger.Logger, threadSize, processSize int) *PoolExecutor {
	if threadSize <= 0 {
		threadSize = DefaultThreadPoolSize
	}
	if processSize <= 0 {
		processSize = DefaultProcessPoolSize
	}
	return &PoolExecutor{
		logger:      log,
		threadSize:  threadSize,
		processSize: processSize,
	}
}

// Execute runs the node's body on its preferred pool and returns its
// output. There is no implicit retry; cancellation is observed through
// the context, though workers already running are not preempted.
func (e *PoolExecutor) Execute(ctx context.Context, n node.Node, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	switch n.ExecutionPool() {
	case payload.PoolAsync:
		return n.Run(ctx, in)
	case payload.PoolThread:
		pool, err := e.pool(&e.threads, e.threadSize)
		if err != nil {
			return nil, err
		}
		return pool.run(ctx, n, in)
	case payload.PoolProcess:
		pool, err := e.pool(&e.procs, e.processSize)
		if err != nil {
			return nil, err
		}
		return pool.run(ctx, n, in)
	default:
		return nil, fmt.Errorf("unknown execution pool %q for node %s", n.ExecutionPool(), n.ID())
	}
}

// pool lazily creates a worker pool on first use
func (e *PoolExecutor) pool(slot **workerPool, size int) (*workerPool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("executor is shut down")
	}
	if *slot == nil {
		*slot = newWorkerPool(size)
		e.logger.Debug("started worker pool", "size", size)
	}
	return *slot, nil
}

// Shutdown tears down both pools. With wait=true it lets queued tasks
// drain; with wait=false in-flight tasks are abandoned.
func (e *PoolExecutor) Shutdown(wait bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	if e.threads != nil {
		e.threads.shutdown(wait)
		e.threads = nil
	}
	if e.procs != nil {
		e.procs.shutdown(wait)
		e.procs = nil
	}
	e.logger.Debug("executor shut down", "wait", wait)
}

type task struct {
	run    func() (*payload.NodeOutput, error)
	result chan taskResult
}

type taskResult struct {
	out *payload.NodeOutput
	err error
}

type workerPool struct {
	tasks chan task
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

func newWorkerPool(size int) *workerPool {
	p := &workerPool{
		tasks: make(chan task),
		stop:  make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case t := <-p.tasks:
			out, err := t.run()
			t.result <- taskResult{out: out, err: err}
		}
	}
}

// run submits the node call and blocks until a worker returns or the
// context is cancelled. A worker that already picked the task up keeps
// running; its result is discarded.
func (p *workerPool) run(ctx context.Context, n node.Node, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	t := task{
		run:    func() (*payload.NodeOutput, error) { return n.Run(ctx, in) },
		result: make(chan taskResult, 1),
	}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stop:
		return nil, fmt.Errorf("worker pool is shut down")
	}

	select {
	case res := <-t.result:
		return res.out, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *workerPool) shutdown(wait bool) {
	p.once.Do(func() {
		close(p.stop)
	})
	if wait {
		p.wg.Wait()
	}
}
