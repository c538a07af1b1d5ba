package download

import (
	"context"
	"sync"
)

// Result represents an in-flight or completed request cycle. It settles
// exactly once, either resolved with a value or rejected with an error.
type Result[T any] struct {
	id   string
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// NewResult returns an unsettled Result tagged with id.
func NewResult[T any](id string) *Result[T] {
	return &Result[T]{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the identifier the Result was created with.
func (r *Result[T]) ID() string { return r.id }

// Done returns a channel that is closed once the Result settles.
func (r *Result[T]) Done() <-chan struct{} { return r.done }

// Resolve settles the Result with val. It reports false if the
// Result had already settled.
func (r *Result[T]) Resolve(val T) bool {
	return r.settle(val, nil)
}

// Reject settles the Result with err. It reports false if the
// Result had already settled.
func (r *Result[T]) Reject(err error) bool {
	var zero T
	return r.settle(zero, err)
}

// Err blocks until the Result settles and returns its error.
func (r *Result[T]) Err() error {
	<-r.done
	return r.err
}

// Wait blocks until the Result settles or ctx ends.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (r *Result[T]) settle(val T, err error) bool {
	settled := false
	r.once.Do(func() {
		r.val = val
		r.err = err
		settled = true
		close(r.done)
	})

	return settled
}
