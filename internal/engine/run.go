package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/leapstack-labs/leapgraph/internal/artifacts"
	"github.com/leapstack-labs/leapgraph/internal/dag"
	"github.com/leapstack-labs/leapgraph/internal/loader"
	"github.com/leapstack-labs/leapgraph/internal/queue"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// RunOptions select what Run executes.
type RunOptions struct {
	Selection
	// NoHooks skips the on-run-start and on-run-end operations.
	NoHooks bool
}

// RunResult is the outcome of a run.
type RunResult struct {
	Run *core.Run
	// Results holds one entry per executed or skipped node, sorted by id.
	// Hooks are included.
	Results  []*core.ExecutionResult
	Duration time.Duration
}

// Count returns how many nodes finished with status.
func (r *RunResult) Count(status core.NodeRunStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Result returns the result recorded for a node.
func (r *RunResult) Result(uniqueID string) (*core.ExecutionResult, bool) {
	for _, res := range r.Results {
		if res.UniqueID == uniqueID {
			return res, true
		}
	}
	return nil, false
}

// Succeeded reports whether no node failed.
func (r *RunResult) Succeeded() bool {
	return r.Count(core.NodeRunStatusFailed) == 0
}

// Run compiles and executes the selection. Nodes run on a pool of
// Threads workers as soon as their parents are done. A failed node skips
// its descendants; with fail fast the whole run is cancelled.
//
// The returned error reports problems with the run itself, such as a
// compile failure or a broken hook. Node failures are only reported
// through the result.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if e.project == nil {
		return nil, ErrNotLoaded
	}
	start := time.Now()

	sub, err := e.runGraph(opts.Selection)
	if err != nil {
		return nil, err
	}
	var startHooks, endHooks []*core.Node
	if !opts.NoHooks {
		startHooks = e.hooks(loader.TagOnRunStart)
		endHooks = e.hooks(loader.TagOnRunEnd)
	}

	run, err := e.store.CreateRun(e.cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	e.logger.Info("starting run",
		"run_id", run.ID,
		"environment", e.cfg.Environment,
		"nodes", sub.NodeCount(),
		"threads", e.cfg.Threads)

	rec := newRecorder(e, run.ID)
	runErr := e.prepare(ctx, sub, startHooks, endHooks)
	if runErr == nil {
		runErr = e.runHooks(ctx, rec, startHooks)
	}

	cancelled := false
	if runErr == nil {
		cancelled = e.dispatch(ctx, sub, rec)
		if endErr := e.runHooks(ctx, rec, endHooks); endErr != nil {
			runErr = endErr
		}
	}

	// Whatever was never handed out did not run.
	reason := "run cancelled"
	if runErr != nil {
		reason = "run aborted"
	}
	for _, id := range sub.Nodes() {
		rec.skip(id, reason)
	}

	status := core.RunStatusCompleted
	errMsg := ""
	switch {
	case runErr != nil:
		status = core.RunStatusFailed
		errMsg = runErr.Error()
	case cancelled:
		status = core.RunStatusCancelled
		errMsg = "cancelled after a node failed"
		if ctx.Err() != nil {
			errMsg = ctx.Err().Error()
		}
	case rec.failed():
		status = core.RunStatusFailed
		errMsg = "one or more nodes failed"
	}
	if err := e.store.CompleteRun(run.ID, status, errMsg); err != nil {
		e.logger.Warn("failed to complete run", "run_id", run.ID, "error", err)
	}
	if stored, err := e.store.GetRun(run.ID); err == nil {
		run = stored
	}

	result := &RunResult{Run: run, Results: rec.results(), Duration: time.Since(start)}
	e.writeRunResults(result)

	e.logger.Info("run finished",
		"run_id", run.ID,
		"status", run.Status,
		"success", result.Count(core.NodeRunStatusSuccess),
		"warn", result.Count(core.NodeRunStatusWarn),
		"failed", result.Count(core.NodeRunStatusFailed),
		"skipped", result.Count(core.NodeRunStatusSkipped),
		"duration_ms", result.Duration.Milliseconds())

	return result, runErr
}

// runGraph returns the subgraph of runnable selected nodes.
func (e *Engine) runGraph(sel Selection) (*dag.Graph, error) {
	ids, err := e.Select(sel)
	if err != nil {
		return nil, err
	}
	keep := ids[:0]
	for _, id := range ids {
		if node, ok := e.project.Manifest.Get(id); ok && runnable(node) {
			keep = append(keep, id)
		}
	}
	return e.graph.InducedSubgraph(keep)
}

// hooks returns the operations tagged tag in load order.
func (e *Engine) hooks(tag string) []*core.Node {
	var out []*core.Node
	for _, node := range e.project.Manifest.NodesOfType(core.ResourceOperation) {
		if node.Config.HasTag(tag) {
			out = append(out, node)
		}
	}
	return out
}

// prepare compiles everything the run executes and connects to the warehouse.
func (e *Engine) prepare(ctx context.Context, sub *dag.Graph, hookSets ...[]*core.Node) error {
	if _, err := e.compiler.CompileAll(ctx, sub); err != nil {
		return err
	}
	for _, set := range hookSets {
		for _, hook := range set {
			if _, _, err := e.compiler.Compile(ctx, hook.UniqueID); err != nil {
				return err
			}
		}
	}
	e.writeGraph(sub)
	return e.ensureDBConnected(ctx)
}

// runHooks executes operations one after another. The first failure stops
// the remaining hooks.
func (e *Engine) runHooks(ctx context.Context, rec *recorder, hooks []*core.Node) error {
	for i, hook := range hooks {
		res := rec.execute(ctx, hook.UniqueID)
		if !res.Succeeded() {
			for _, rest := range hooks[i+1:] {
				rec.skip(rest.UniqueID, "previous hook failed")
			}
			return fmt.Errorf("hook %s failed: %w", hook.UniqueID, res.Err)
		}
	}
	return nil
}

// dispatch feeds the nodes of sub to the worker pool until every node is
// done or the run is cancelled. It reports whether the run was cancelled.
func (e *Engine) dispatch(ctx context.Context, sub *dag.Graph, rec *recorder) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	q := queue.New(sub, e.project.Manifest)
	sem := semaphore.NewWeighted(int64(max(e.cfg.Threads, 1)))
	var g errgroup.Group

	for {
		// Wait for a free worker before taking a node, so a node is
		// never held while no one can run it.
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if ctx.Err() != nil {
			sem.Release(1)
			break
		}
		id, err := q.Get(ctx, true, 0)
		if err != nil {
			sem.Release(1)
			if !errors.Is(err, queue.ErrQueueEmpty) {
				e.logger.Debug("dispatch stopped", "error", err)
			}
			break
		}

		if rec.skipped(id) {
			rec.skip(id, "")
			q.MarkDone(id)
			sem.Release(1)
			continue
		}

		g.Go(func() error {
			defer sem.Release(1)
			defer q.MarkDone(id)

			res := rec.execute(ctx, id)
			if res.Succeeded() {
				return nil
			}
			rec.skipAll(sub.Descendants(id), id)
			if e.cfg.Flags.FailFast {
				e.logger.Info("fail fast: cancelling run", "node", id)
				cancel()
			}
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err() != nil
}

// recorder collects execution results and mirrors them into the state store.
// It is safe for concurrent use.
type recorder struct {
	e     *Engine
	runID string

	mu sync.Mutex
	// byID holds the final result per node.
	byID map[string]*core.ExecutionResult
	// skipReasons holds nodes marked for skipping that are not recorded yet.
	skipReasons map[string]string
}

func newRecorder(e *Engine, runID string) *recorder {
	return &recorder{
		e:           e,
		runID:       runID,
		byID:        make(map[string]*core.ExecutionResult),
		skipReasons: make(map[string]string),
	}
}

// execute runs one node, recording it as running and then its outcome.
func (r *recorder) execute(ctx context.Context, id string) *core.ExecutionResult {
	logger := r.e.logger
	node, err := r.e.project.Manifest.Expect(id)
	if err != nil {
		res := &core.ExecutionResult{UniqueID: id, Status: core.NodeRunStatusFailed, Err: err, Message: err.Error()}
		r.add(res, nil)
		return res
	}

	nodeRun := &core.NodeRun{
		RunID:    r.runID,
		UniqueID: id,
		Status:   core.NodeRunStatusRunning,
	}
	if err := r.e.store.RecordNodeRun(nodeRun); err != nil {
		logger.Warn("failed to record node run", "node", id, "error", err)
		nodeRun = nil
	}

	logger.Debug("executing node", "node", id, "materialized", node.Config.Materialized)
	res := r.e.executeNode(ctx, node)
	switch res.Status {
	case core.NodeRunStatusFailed:
		logger.Error("node failed", "node", id, "error", res.Message, "duration_ms", res.Duration.Milliseconds())
	case core.NodeRunStatusWarn:
		logger.Warn("node warned", "node", id, "message", res.Message, "duration_ms", res.Duration.Milliseconds())
	default:
		logger.Info("node finished", "node", id, "rows", res.RowsAffected, "duration_ms", res.Duration.Milliseconds())
	}

	r.add(res, nodeRun)
	return res
}

// add stores a final result and updates its node run.
func (r *recorder) add(res *core.ExecutionResult, nodeRun *core.NodeRun) {
	r.mu.Lock()
	r.byID[res.UniqueID] = res
	delete(r.skipReasons, res.UniqueID)
	r.mu.Unlock()

	if nodeRun == nil {
		return
	}
	if err := r.e.store.UpdateNodeRun(nodeRun.ID, res.Status, res.RowsAffected,
		res.Message, res.Duration.Milliseconds()); err != nil {
		r.e.logger.Warn("failed to update node run", "node", res.UniqueID, "error", err)
	}
}

// skipAll marks ids to be skipped because cause failed.
func (r *recorder) skipAll(ids []string, cause string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if _, done := r.byID[id]; done {
			continue
		}
		if _, marked := r.skipReasons[id]; !marked {
			r.skipReasons[id] = "upstream " + cause + " failed"
		}
	}
}

// skipped reports whether id was marked by skipAll.
func (r *recorder) skipped(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.skipReasons[id]
	return ok
}

// skip records id as skipped unless it already has a result. A mark left
// by skipAll takes precedence over reason.
func (r *recorder) skip(id, reason string) {
	r.mu.Lock()
	if _, done := r.byID[id]; done {
		r.mu.Unlock()
		return
	}
	if marked, ok := r.skipReasons[id]; ok {
		reason = marked
	}
	r.mu.Unlock()

	res := &core.ExecutionResult{UniqueID: id, Status: core.NodeRunStatusSkipped, Message: reason}
	nodeRun := &core.NodeRun{
		RunID:    r.runID,
		UniqueID: id,
		Status:   core.NodeRunStatusSkipped,
		Error:    reason,
	}
	if err := r.e.store.RecordNodeRun(nodeRun); err != nil {
		r.e.logger.Warn("failed to record node run", "node", id, "error", err)
		nodeRun = nil
	}
	r.e.logger.Info("node skipped", "node", id, "reason", reason)
	r.add(res, nodeRun)
}

// failed reports whether any node failed.
func (r *recorder) failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.byID {
		if res.Status == core.NodeRunStatusFailed {
			return true
		}
	}
	return false
}

// results returns every recorded result sorted by id.
func (r *recorder) results() []*core.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*core.ExecutionResult, 0, len(r.byID))
	for _, res := range r.byID {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// runResultsFile is the JSON form of a RunResult.
type runResultsFile struct {
	RunID       string          `json:"run_id"`
	Environment string          `json:"environment"`
	Status      core.RunStatus  `json:"status"`
	Error       string          `json:"error,omitempty"`
	ElapsedMS   int64           `json:"elapsed_ms"`
	Results     []nodeResultRow `json:"results"`
}

type nodeResultRow struct {
	UniqueID     string             `json:"unique_id"`
	Status       core.NodeRunStatus `json:"status"`
	RowsAffected int64              `json:"rows_affected"`
	Failures     int64              `json:"failures,omitempty"`
	Message      string             `json:"message,omitempty"`
	ExecutionMS  int64              `json:"execution_ms"`
}

func (e *Engine) writeRunResults(result *RunResult) {
	if e.artifacts == nil {
		return
	}
	out := runResultsFile{
		RunID:       result.Run.ID,
		Environment: result.Run.Environment,
		Status:      result.Run.Status,
		Error:       result.Run.Error,
		ElapsedMS:   result.Duration.Milliseconds(),
		Results:     make([]nodeResultRow, 0, len(result.Results)),
	}
	for _, res := range result.Results {
		out.Results = append(out.Results, nodeResultRow{
			UniqueID:     res.UniqueID,
			Status:       res.Status,
			RowsAffected: res.RowsAffected,
			Failures:     res.Failures,
			Message:      res.Message,
			ExecutionMS:  res.Duration.Milliseconds(),
		})
	}
	if err := e.artifacts.WriteJSON(artifacts.RunResultsFile, out); err != nil {
		e.logger.Warn("failed to write run results", "file", artifacts.RunResultsFile, "error", err)
	}
}
