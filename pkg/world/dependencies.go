package world

import (
	"sync"

	"github.com/argus-labs/archquery/pkg/query"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Dependencies tracks in-flight writer jobs per component type. Writers may only touch enabled bits
// and change versions, never the archetype structure.
type Dependencies struct {
	mu      sync.Mutex
	writers map[query.TypeIndex][]chan struct{}
	group   errgroup.Group
}

var _ query.DependencyTracker = (*Dependencies)(nil)

// NewDependencies creates an empty tracker.
func NewDependencies() *Dependencies {
	return &Dependencies{writers: make(map[query.TypeIndex][]chan struct{})}
}

// ScheduleWrite runs fn on a new goroutine as a writer of the given types.
func (d *Dependencies) ScheduleWrite(types []query.TypeIndex, fn func() error) {
	done := make(chan struct{})

	d.mu.Lock()
	for _, t := range types {
		d.writers[t] = append(d.writers[t], done)
	}
	d.mu.Unlock()

	d.group.Go(func() error {
		defer close(done)
		if err := fn(); err != nil {
			return eris.Wrap(err, "scheduled writer failed")
		}
		return nil
	})
}

// CompleteWriters blocks until every writer of t scheduled so far is done.
func (d *Dependencies) CompleteWriters(t query.TypeIndex) {
	d.mu.Lock()
	pending := d.writers[t]
	delete(d.writers, t)
	d.mu.Unlock()

	for _, done := range pending {
		<-done
	}
}

// CompleteDependencies blocks until every writer of the given types is done.
func (d *Dependencies) CompleteDependencies(readers, writers []query.TypeIndex) {
	for _, t := range readers {
		d.CompleteWriters(t)
	}
	for _, t := range writers {
		d.CompleteWriters(t)
	}
}

// Wait blocks until every scheduled writer is done and returns the first error.
func (d *Dependencies) Wait() error {
	err := d.group.Wait()

	d.mu.Lock()
	clear(d.writers)
	d.mu.Unlock()
	return err
}

// Pending returns the number of types with writers that were not completed yet.
func (d *Dependencies) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writers)
}
