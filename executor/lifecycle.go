package executor

import "sync"

// lifecycleCoordinator executes the Executor's shutdown sequence exactly
// once, adapted from the teacher's lifecycleCoordinator: it owns no state
// of its own, only the order in which the Executor's pieces are torn down.
type lifecycleCoordinator struct {
	once sync.Once

	broadcastStop func() // flips the stopped flag and wakes every waiting worker
	joinWorkers   func() error
	closeEvents   func() // any post-join cleanup (e.g. closing metrics-adjacent channels)

	err error // result of joinWorkers, returned to every Close caller
}

func newLifecycleCoordinator(broadcastStop func(), joinWorkers func() error, closeEvents func()) *lifecycleCoordinator {
	return &lifecycleCoordinator{
		broadcastStop: broadcastStop,
		joinWorkers:   joinWorkers,
		closeEvents:   closeEvents,
	}
}

// Close runs: 1) mark stopped and wake all workers, 2) join all worker
// goroutines, 3) run any post-join cleanup. Safe for concurrent calls; the
// sequence executes exactly once and every caller observes its result.
func (lc *lifecycleCoordinator) Close() error {
	lc.once.Do(func() {
		if lc.broadcastStop != nil {
			lc.broadcastStop()
		}
		if lc.joinWorkers != nil {
			lc.err = lc.joinWorkers()
		}
		if lc.closeEvents != nil {
			lc.closeEvents()
		}
	})
	return lc.err
}
