package query

import "golang.org/x/sync/errgroup"

// AsyncResult is a deferred materialization. Its buffer is presized from the unfiltered count, so
// its length is provisional until Wait returns.
type AsyncResult[T any] struct {
	group errgroup.Group
	out   []T
	bound int
}

// UpperBound is the unfiltered count the result buffer was sized for.
func (a *AsyncResult[T]) UpperBound() int {
	return a.bound
}

// Wait blocks until the deferred computation is done and returns its result.
func (a *AsyncResult[T]) Wait() ([]T, error) {
	if err := a.group.Wait(); err != nil {
		return nil, err
	}
	return a.out, nil
}

// ToEntityArrayAsync materializes the matching entities on another goroutine. The cache is brought
// up to date before returning. Structural changes must not happen until Wait returns.
func (q *Query) ToEntityArrayAsync() *AsyncResult[EntityID] {
	bound := q.CalculateEntityCountWithoutFiltering()
	res := &AsyncResult[EntityID]{out: make([]EntityID, 0, bound), bound: bound}
	res.group.Go(func() error {
		q.completeDependencies()
		q.registry.deps.CompleteDependencies(q.readers, q.writers)
		res.out = q.collectEntities(res.out)
		return nil
	})
	return res
}

// ToChunkArrayAsync materializes the matching chunks on another goroutine, with the same
// constraints as ToEntityArrayAsync.
func (q *Query) ToChunkArrayAsync() *AsyncResult[ChunkRef] {
	bound := q.CalculateChunkCountWithoutFiltering()
	res := &AsyncResult[ChunkRef]{out: make([]ChunkRef, 0, bound), bound: bound}
	res.group.Go(func() error {
		q.completeDependencies()
		q.registry.deps.CompleteDependencies(q.readers, q.writers)
		res.out = q.collectChunks(res.out)
		return nil
	})
	return res
}
