package dispatch

import (
	"log/slog"
	"sync"
)

// pool is an unbounded FIFO drained by a fixed set of worker goroutines.
// Submissions never block, so a writer fanning out to a slow observer is
// never held up by it.
type pool struct {
	label  string
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	closed  bool
	workers sync.WaitGroup
}

func newPool(label string, workers int, opts ...Option) *pool {
	if workers < 1 {
		workers = 1
	}
	p := &pool{
		label:  label,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cond = sync.NewCond(&p.mu)
	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *pool) submit(task func()) bool {
	if task == nil {
		return false
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Debug("dispatch: task submitted to closed queue", "queue", p.label)
		return false
	}
	p.tasks = append(p.tasks, task)
	p.mu.Unlock()
	p.cond.Signal()
	return true
}

func (p *pool) work() {
	defer p.workers.Done()
	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.tasks[0]
		p.tasks[0] = nil
		p.tasks = p.tasks[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("dispatch: task panicked", "queue", p.label, "panic", r)
		}
	}()
	task()
}

// close stops accepting tasks, lets the workers finish what is queued and
// waits for them.
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.workers.Wait()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.workers.Wait()
}

func (p *pool) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}
