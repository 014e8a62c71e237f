// Package queue hands out graph nodes whose dependencies are done.
//
// GraphQueue is a priority queue layered over a dependency graph. A node
// becomes ready when all of its parents have been marked done. Among ready
// nodes the one unlocking the most downstream work is returned first.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/leapstack-labs/leapgraph/internal/dag"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// ErrQueueEmpty is returned by Get when no node is ready. Work may still
// remain; check Empty to tell the two apart.
var ErrQueueEmpty = errors.New("no node is ready")

// NodeLookup finds the node stored under an id.
type NodeLookup interface {
	Get(uniqueID string) (*core.Node, bool)
}

// GraphQueue schedules the nodes of a graph.
// All methods are safe for concurrent use.
type GraphQueue struct {
	mu         sync.Mutex
	graph      *dag.Graph
	scores     map[string]int
	ready      readyHeap
	queued     map[string]bool
	inProgress map[string]bool
	seq        int
	// wake is closed and replaced whenever new nodes become ready.
	wake chan struct{}
}

// New builds a queue over a copy of g. A node's score is minus the number of
// descendants that occupy a worker; ephemeral descendants do not count
// because they never run on their own. Nodes unknown to lookup count.
func New(g *dag.Graph, lookup NodeLookup) *GraphQueue {
	q := &GraphQueue{
		graph:      g.Copy(),
		scores:     make(map[string]int),
		queued:     make(map[string]bool),
		inProgress: make(map[string]bool),
		wake:       make(chan struct{}),
	}

	for _, id := range q.graph.Nodes() {
		blocking := 0
		for _, d := range q.graph.Descendants(id) {
			if node, ok := lookup.Get(d); ok && node.IsEphemeral() {
				continue
			}
			blocking++
		}
		q.scores[id] = -blocking
	}

	for _, id := range q.graph.Nodes() {
		if q.graph.InDegree(id) == 0 {
			q.push(id)
		}
	}

	return q
}

// Get pops the ready node with the lowest score and marks it in progress.
// Without block it returns ErrQueueEmpty right away when nothing is ready.
// With block it waits until a node becomes ready, the timeout (if positive)
// expires, ctx is done, or no undone work is left to hand out.
func (q *GraphQueue) Get(ctx context.Context, block bool, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if block && timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		if q.ready.Len() > 0 {
			it := heap.Pop(&q.ready).(item)
			delete(q.queued, it.id)
			q.inProgress[it.id] = true
			q.mu.Unlock()
			return it.id, nil
		}
		remaining := q.graph.NodeCount() - len(q.inProgress)
		wake := q.wake
		q.mu.Unlock()

		if !block || remaining == 0 {
			return "", ErrQueueEmpty
		}

		select {
		case <-wake:
		case <-expired:
			return "", ErrQueueEmpty
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// MarkDone removes a finished node from the graph and queues every child
// that has no unfinished parents left. It must be called for every id Get
// returned, whether the node succeeded or not.
func (q *GraphQueue) MarkDone(uniqueID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	children := append([]string(nil), q.graph.Children(uniqueID)...)
	q.graph.RemoveNode(uniqueID)
	delete(q.inProgress, uniqueID)

	sort.Strings(children)
	for _, child := range children {
		if q.graph.InDegree(child) == 0 && !q.queued[child] && !q.inProgress[child] {
			q.push(child)
		}
	}

	// Waiters re-check on every completion, including the last one.
	close(q.wake)
	q.wake = make(chan struct{})
}

// Len returns the number of nodes not yet done minus those in progress.
// It is an upper bound on what Get can still return.
func (q *GraphQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.graph.NodeCount() - len(q.inProgress)
}

// Empty reports whether Len is zero.
func (q *GraphQueue) Empty() bool {
	return q.Len() == 0
}

// InProgress returns the ids handed out and not yet marked done, sorted.
func (q *GraphQueue) InProgress() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, 0, len(q.inProgress))
	for id := range q.inProgress {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Score returns the priority of id. Lower runs first.
func (q *GraphQueue) Score(uniqueID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.scores[uniqueID]
}

// push queues id. Callers must hold mu.
func (q *GraphQueue) push(id string) {
	q.seq++
	heap.Push(&q.ready, item{id: id, score: q.scores[id], seq: q.seq})
	q.queued[id] = true
}

type item struct {
	id    string
	score int
	seq   int
}

// readyHeap orders by score, then by the order nodes became ready.
type readyHeap []item

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
