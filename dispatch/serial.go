package dispatch

// Serial runs tasks one at a time, in submission order, on a single worker
// goroutine.
type Serial struct {
	p *pool
}

func NewSerial(label string, opts ...Option) *Serial {
	return &Serial{p: newPool(label, 1, opts...)}
}

func (s *Serial) isNil() bool { return s == nil }

func (s *Serial) Label() string {
	return s.p.label
}

// Async queues task. Tasks submitted after Close are dropped.
func (s *Serial) Async(task func()) {
	s.p.submit(task)
}

// Sync queues task and waits for it to finish. Calling Sync from a task
// running on the same queue deadlocks.
func (s *Serial) Sync(task func()) {
	done := make(chan struct{})
	ok := s.p.submit(func() {
		defer close(done)
		task()
	})
	if !ok {
		return
	}
	<-done
}

// Pending returns the number of tasks waiting to run.
func (s *Serial) Pending() int {
	return s.p.pending()
}

// Close runs what is already queued and stops the worker. Must not be called
// from a task on this queue.
func (s *Serial) Close() {
	s.p.close()
}

// Concurrent runs tasks on a fixed number of workers. Tasks start in
// submission order but may finish, and observe shared state, in any order.
type Concurrent struct {
	p *pool
}

func NewConcurrent(label string, workers int, opts ...Option) *Concurrent {
	return &Concurrent{p: newPool(label, workers, opts...)}
}

func (c *Concurrent) isNil() bool { return c == nil }

func (c *Concurrent) Label() string {
	return c.p.label
}

func (c *Concurrent) Async(task func()) {
	c.p.submit(task)
}

func (c *Concurrent) Pending() int {
	return c.p.pending()
}

func (c *Concurrent) Close() {
	c.p.close()
}
