package exec

import (
	"sync"

	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

// task is one transaction dispatched to the pool together with the channel
// its result must be delivered on.
type task struct {
	t    *txn.Transaction
	done chan<- result
}

// result is the outcome of running one transaction's effect.
type result struct {
	txID string
	diff *txn.Diff
	err  error
}

// pool is a bounded set of worker goroutines draining a shared task
// channel. Closing the channel stops the workers; wait returns once every
// worker has exited.
type pool struct {
	tasks chan task
	wg    sync.WaitGroup
}

func newPool(workers, queue int, run func(worker int, t *txn.Transaction) result) *pool {
	p := &pool{tasks: make(chan task, queue)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			for tk := range p.tasks {
				tk.done <- run(worker, tk.t)
			}
		}(i)
	}
	return p
}

func (p *pool) submit(tk task) {
	p.tasks <- tk
}

func (p *pool) stop() {
	close(p.tasks)
	p.wg.Wait()
}
