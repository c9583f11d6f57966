// Package workers provides abstractions for managing and running
// background jobs of the data core: the periodic sync cycle and the
// scheduled backup sweep. It defines the Worker interface and a Workers
// aggregate that runs multiple workers in a unified way.
package workers

// Worker is the interface implemented by any background job. Run starts
// the job; implementations spawn their goroutines internally and return.
type Worker interface {
	Run()
}

// Workers runs a set of background jobs together.
type Workers struct {
	workers []Worker
}

// New aggregates the given workers.
func New(ws ...Worker) *Workers {
	return &Workers{workers: ws}
}

// Run starts every worker in order.
func (w *Workers) Run() {
	for _, worker := range w.workers {
		worker.Run()
	}
}
