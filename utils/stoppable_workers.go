package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers runs goroutines that share one context and are all stopped together. The
// drive runs its sampler, its mode loops and its speed backend this way.
type StoppableWorkers interface {
	// AddWorkers starts each function in its own goroutine. It does nothing once stopped.
	AddWorkers(...func(context.Context))
	// Stop cancels the shared context and waits for every worker to return.
	Stop()
	// Context is the context handed to the workers.
	Context() context.Context
}

// workerGroup is only handed out by pointer so the WaitGroup is never copied.
type workerGroup struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func newWorkerGroup(parent context.Context, funcs []func(context.Context)) *workerGroup {
	ctx, cancel := context.WithCancel(parent)
	group := &workerGroup{ctx: ctx, cancel: cancel}
	group.AddWorkers(funcs...)
	return group
}

// NewStoppableWorkers starts funcs and returns a handle to stop them.
func NewStoppableWorkers(funcs ...func(context.Context)) StoppableWorkers {
	return newWorkerGroup(context.Background(), funcs)
}

// NewChildStoppableWorkers is NewStoppableWorkers under parent: stopping parent cancels the
// child too, while the child can be stopped and replaced on its own. The active speed backend
// runs this way.
func NewChildStoppableWorkers(parent StoppableWorkers, funcs ...func(context.Context)) StoppableWorkers {
	return newWorkerGroup(parent.Context(), funcs)
}

func (g *workerGroup) AddWorkers(funcs ...func(context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx.Err() != nil {
		return
	}
	for _, f := range funcs {
		f := f
		g.running.Add(1)
		goutils.PanicCapturingGo(func() {
			defer g.running.Done()
			f(g.ctx)
		})
	}
}

func (g *workerGroup) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancel()
	g.running.Wait()
}

func (g *workerGroup) Context() context.Context {
	return g.ctx
}
