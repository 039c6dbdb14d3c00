package runner

import (
	"context"
	"sync"
	"time"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/flow/events"
	"github.com/lyzr/flowengine/flow/executor"
	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/payload"
)

// DefaultFailureBackoff is how long the production loop sleeps after a
// node failure before retrying the iteration
const DefaultFailureBackoff = time.Second

// Production drives one producer's infinite loop: run the producer,
// walk its downstream, honor conditional branching, propagate sentinels,
// and keep going through transient failures.
type Production struct {
	walker
	producer *graph.FlowNode
	tracker  *events.StateTracker
	backoff  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	cancelMu sync.Mutex

	cleanupOnce sync.Once
}

// NewProduction creates a runner for one producer node
func NewProduction(producer *graph.FlowNode, exec *executor.PoolExecutor, emitter *events.Emitter, tracker *events.StateTracker, runtime map[string]any, log *logger.Logger, backoff time.Duration) *Production {
	if backoff <= 0 {
		backoff = DefaultFailureBackoff
	}
	return &Production{
		walker: walker{
			exec:    exec,
			events:  emitter,
			logger:  log.WithNodeID(producer.ID),
			runtime: runtime,
		},
		producer: producer,
		tracker:  tracker,
		backoff:  backoff,
		stop:     make(chan struct{}),
	}
}

// Start runs the production loop until the producer emits the
// termination sentinel or the runner is shut down. Node failures are
// logged and retried after a short backoff; they never kill the loop.
func (r *Production) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancelMu.Lock()
	r.cancel = cancel
	r.cancelMu.Unlock()

	r.tracker.RegisterRunner()
	defer r.tracker.UnregisterRunner()
	defer r.cleanupProducer()

	if err := r.initReachable(ctx, r.producer); err != nil {
		return err
	}

	for {
		select {
		case <-r.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		in := payload.New()
		if env, ok := r.runtime[payload.MetaWorkflowEnv]; ok {
			in.Metadata[payload.MetaWorkflowEnv] = env
		}

		out, err := r.runNode(ctx, r.producer, in)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("producer iteration failed", "error", err)
			r.sleep(ctx, r.backoff)
			continue
		}

		if out.IsExecutionCompleted() {
			if err := r.broadcastSentinel(ctx, r.producer, out); err != nil {
				r.logger.Warn("sentinel broadcast failed", "error", err)
			}
			r.cleanupProducer()
			return nil
		}

		if err := r.descend(ctx, r.producer, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("downstream traversal failed", "error", err)
			r.sleep(ctx, r.backoff)
		}
	}
}

// Shutdown stops the main loop. With force=true any in-flight work is
// cancelled instead of drained. The producer's cleanup always runs.
func (r *Production) Shutdown(force bool) {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	if force {
		r.cancelMu.Lock()
		if r.cancel != nil {
			r.cancel()
		}
		r.cancelMu.Unlock()
	}
}

func (r *Production) cleanupProducer() {
	r.cleanupOnce.Do(func() {
		// Detached context: cleanup must run even after cancellation
		if err := r.producer.Node.Cleanup(context.Background(), nil); err != nil {
			r.logger.Warn("producer cleanup failed", "error", err)
		}
	})
}

func (r *Production) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-r.stop:
	}
}

// Producer returns the producer node this runner drives
func (r *Production) Producer() *graph.FlowNode {
	return r.producer
}
