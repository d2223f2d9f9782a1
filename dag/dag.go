package dag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/cenkalti/backoff/v4"
)

type nodeState int

const (
	pending nodeState = iota
	running
	success
	failed
	skipped
)

// ErrSkipped is recorded for tasks whose dependencies did not succeed.
var ErrSkipped = errors.New("dependency did not succeed")

type Engine struct {
	nodes     map[string]Task
	edges     map[string][]string
	state     map[string]nodeState
	errs      map[string]error
	artifacts Artifacts
	mu        sync.RWMutex

	// NewBackOff builds the retry schedule for one task, defaults to
	// exponential backoff.
	NewBackOff func() backoff.BackOff
}

func NewEngine(tasks []Task) *Engine {
	nodes := make(map[string]Task)
	edges := make(map[string][]string)
	state := make(map[string]nodeState)
	errs := make(map[string]error)
	for _, t := range tasks {
		nodes[t.ID()] = t
		edges[t.ID()] = t.Deps()
		state[t.ID()] = pending
	}
	return &Engine{nodes: nodes, edges: edges, state: state, errs: errs}
}

// Run executes every task once its dependencies succeeded, with at most
// workers tasks in flight. A failed task skips everything that depends on
// it, unrelated tasks carry on. Run returns ctx.Err() when cancelled,
// otherwise the joined errors of the failed tasks.
func (e *Engine) Run(ctx context.Context, root Artifacts, workers int) error {
	if err := e.checkDeps(); err != nil {
		return err
	}
	if workers < 1 {
		workers = 1
	}

	e.mu.Lock()
	e.artifacts = make(Artifacts, len(root))
	for k, v := range root {
		e.artifacts[k] = v
	}
	e.mu.Unlock()

	done := make(chan struct{})
	inflight := 0
	for {
		if ctx.Err() == nil {
			for _, id := range e.ready() {
				if inflight >= workers {
					break
				}
				e.setState(id, running, nil)
				inflight++
				go func(id string) {
					e.execute(ctx, id)
					done <- struct{}{}
				}(id)
			}
		}
		e.skipBlocked()

		if inflight == 0 {
			break
		}
		<-done
		inflight--
	}

	// anything still pending was cut off by cancellation or a cycle
	leftover := ctx.Err()
	if leftover == nil {
		leftover = errors.New("unresolvable dependency")
	}
	e.mu.Lock()
	for id, st := range e.state {
		if st == pending {
			e.state[id] = skipped
			e.errs[id] = leftover
		}
	}
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	var errs []error
	for _, id := range e.sortedIDs() {
		if e.state[id] == failed {
			errs = append(errs, fmt.Errorf("task %s: %w", id, e.errs[id]))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) execute(ctx context.Context, id string) {
	task := e.nodes[id]

	// merge parent artifacts
	in := make(Artifacts)
	e.mu.RLock()
	for k, v := range e.artifacts {
		in[k] = v
	}
	e.mu.RUnlock()

	// retry with backoff
	var out Artifacts
	operation := func() error {
		childCtx, cancel := ctx, context.CancelFunc(func() {})
		if d := task.Timeout(); d > 0 {
			childCtx, cancel = context.WithTimeout(ctx, d)
		}
		defer cancel()

		var err error
		out, err = task.Run(childCtx, in)
		return err
	}

	b := backoff.WithMaxRetries(e.backOff(), task.MaxRetries())
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		e.setState(id, failed, err)
		return
	}

	// persist child artifacts to shared map
	e.mu.Lock()
	for k, v := range out {
		e.artifacts[k] = v
	}
	e.state[id] = success
	e.mu.Unlock()
}

func (e *Engine) backOff() backoff.BackOff {
	if e.NewBackOff != nil {
		return e.NewBackOff()
	}
	return backoff.NewExponentialBackOff()
}

func (e *Engine) checkDeps() error {
	for _, id := range e.sortedIDs() {
		for _, d := range e.edges[id] {
			if _, ok := e.nodes[d]; !ok {
				return fmt.Errorf("task %s depends on unknown task %s", id, d)
			}
		}
	}
	return nil
}

func (e *Engine) ready() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var list []string
	for id, st := range e.state {
		if st != pending {
			continue
		}
		ok := true
		for _, d := range e.edges[id] {
			if e.state[d] != success {
				ok = false
				break
			}
		}
		if ok {
			list = append(list, id)
		}
	}
	slices.Sort(list)
	return list
}

// skipBlocked marks pending tasks whose dependencies failed or were
// skipped, until nothing changes.
func (e *Engine) skipBlocked() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for changed := true; changed; {
		changed = false
		for id, st := range e.state {
			if st != pending {
				continue
			}
			for _, d := range e.edges[id] {
				if ds := e.state[d]; ds == failed || ds == skipped {
					e.state[id] = skipped
					e.errs[id] = fmt.Errorf("%w: %s", ErrSkipped, d)
					changed = true
					break
				}
			}
		}
	}
}

func (e *Engine) setState(id string, s nodeState, err error) {
	e.mu.Lock()
	e.state[id] = s
	if err != nil {
		e.errs[id] = err
	}
	e.mu.Unlock()
}

func (e *Engine) sortedIDs() []string {
	ids := make([]string, 0, len(e.nodes))
	for id := range e.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Err returns why a task did not succeed, nil if it did.
func (e *Engine) Err(id string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.errs[id]
}

// Succeeded reports whether the task finished without error.
func (e *Engine) Succeeded(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state[id] == success
}

// Artifacts returns a copy of everything the tasks produced.
func (e *Engine) Artifacts() Artifacts {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(Artifacts, len(e.artifacts))
	for k, v := range e.artifacts {
		out[k] = v
	}
	return out
}
