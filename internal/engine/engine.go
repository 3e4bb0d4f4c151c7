package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/flowdag/internal/config"
	"github.com/gyaneshwarpardhi/flowdag/internal/dag"
	"github.com/gyaneshwarpardhi/flowdag/internal/metrics"
)

// TaskFunc is called once per task leaf. path is the slash-joined chain of
// node names from the top-level graph down to the leaf. What a task means is
// entirely up to the caller.
type TaskFunc func(ctx context.Context, path string, task any) error

// RunResult is the outcome of one dispatch run.
type RunResult struct {
	RunID      string `json:"run_id"`
	DurationMs int64  `json:"duration_ms"`
	Tasks      int64  `json:"tasks_dispatched"`
	Error      string `json:"error,omitempty"`
}

// Engine holds the current workflow graph and walks it on request.
type Engine struct {
	cur  atomic.Pointer[snapshot]
	pool *workerPool[*leafWork, struct{}]
	size config.DispatchConf // settings the pool was started with
	log  *slog.Logger
}

// snapshot pairs a graph with the dispatch settings of the workflow it was
// built from, so both are swapped together.
type snapshot struct {
	graph *dag.Graph
	conf  config.DispatchConf
}

type leafWork struct {
	ctx  context.Context
	path string
	task any
	fn   TaskFunc
}

// New creates an Engine using conf and starts its worker pool. Leaf
// callbacks share the pool, so conf.Workers bounds how many run at once.
// The pool keeps this size for the Engine's lifetime.
func New(ctx context.Context, g *dag.Graph, conf config.DispatchConf) *Engine {
	e := &Engine{
		size: conf,
		log:  slog.Default().With("component", "engine"),
	}
	e.cur.Store(&snapshot{graph: g, conf: conf})
	e.pool = newWorkerPool[*leafWork, struct{}](
		ctx,
		conf.Workers,
		conf.QueueDepth,
		func(_ context.Context, w *leafWork) (struct{}, error) {
			start := time.Now()
			err := w.fn(w.ctx, w.path, w.task)
			metrics.TaskDispatchDuration.Observe(time.Since(start).Seconds())
			return struct{}{}, err
		},
	)
	return e
}

// Swap atomically replaces the graph and its dispatch settings (used on
// hot-reload). The run timeout follows conf from the next Run on; worker
// count and queue depth stay as the pool was started.
func (e *Engine) Swap(g *dag.Graph, conf config.DispatchConf) {
	if conf.Workers != e.size.Workers || conf.QueueDepth != e.size.QueueDepth {
		e.log.Warn("worker pool size is fixed until restart",
			"workers", e.size.Workers, "queue_depth", e.size.QueueDepth,
			"requested_workers", conf.Workers, "requested_queue_depth", conf.QueueDepth)
	}
	e.cur.Store(&snapshot{graph: g, conf: conf})
}

// Graph returns the current graph.
func (e *Engine) Graph() *dag.Graph {
	return e.cur.Load().graph
}

// Dispatch returns the dispatch settings of the current graph.
func (e *Engine) Dispatch() config.DispatchConf {
	return e.cur.Load().conf
}

// Plan returns the dispatch plan of the current graph.
func (e *Engine) Plan() *Step {
	return Plan(e.cur.Load().graph)
}

// Run walks the current graph's plan, calling fn for every task. Sequential
// steps stop at the first error; concurrent steps cancel their siblings.
func (e *Engine) Run(ctx context.Context, fn TaskFunc) (*RunResult, error) {
	runID := uuid.NewString()
	start := time.Now()
	log := e.log.With("run_id", runID)

	snap := e.cur.Load()
	var cancel context.CancelFunc
	if snap.conf.TimeoutMs > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(snap.conf.TimeoutMs)*time.Millisecond)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	plan := Plan(snap.graph)
	log.Info("dispatch started", "tasks", plan.Leaves())

	var tasks atomic.Int64
	err := e.walk(ctx, plan, "", fn, &tasks)

	res := &RunResult{
		RunID:      runID,
		DurationMs: time.Since(start).Milliseconds(),
		Tasks:      tasks.Load(),
	}
	if err != nil {
		res.Error = err.Error()
		metrics.DispatchRuns.WithLabelValues("error").Inc()
		log.Warn("dispatch failed", "err", err, "tasks", res.Tasks)
		return res, fmt.Errorf("run %s: %w", runID, err)
	}
	metrics.DispatchRuns.WithLabelValues("success").Inc()
	log.Info("dispatch finished", "tasks", res.Tasks, "duration_ms", res.DurationMs)
	return res, nil
}

func (e *Engine) walk(ctx context.Context, s *Step, path string, fn TaskFunc, tasks *atomic.Int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch s.Mode {
	case ModeTask:
		tasks.Add(1)
		return e.runLeaf(ctx, path, s.Task, fn)
	case ModeConcurrent:
		eg, egCtx := errgroup.WithContext(ctx)
		for _, c := range s.Steps {
			eg.Go(func() error {
				return e.walk(egCtx, c, join(path, c.Name), fn, tasks)
			})
		}
		return eg.Wait()
	default:
		for _, c := range s.Steps {
			if err := e.walk(ctx, c, join(path, c.Name), fn, tasks); err != nil {
				return err
			}
		}
		return nil
	}
}

func (e *Engine) runLeaf(ctx context.Context, path string, task any, fn TaskFunc) error {
	resultC, err := e.pool.Submit(ctx, &leafWork{ctx: ctx, path: path, task: task, fn: fn})
	if err != nil {
		return fmt.Errorf("task %s: %w", path, err)
	}
	metrics.WorkerQueueUtilization.Set(e.QueueUtilization())
	select {
	case r := <-resultC:
		if r.err != nil {
			return fmt.Errorf("task %s: %w", path, r.err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task %s: %w", path, ctx.Err())
	}
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Shutdown drains the worker pool.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "/" + name
}
