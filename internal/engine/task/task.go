// Package task provides the fork/join handle used for background pose
// evaluation and cloth simulation.
package task

import (
	"fmt"
	"runtime/debug"
)

// Handle is the join handle of a dispatched task. Wait may be called any
// number of times; every call returns the same result.
type Handle[T any] struct {
	done   chan struct{}
	result T
	panicV any
	stack  []byte
}

// Go runs fn on a new goroutine and returns its handle. A panic in fn is
// captured and re-raised on Wait as a *PanicError; tasks that must not
// fail recover on their own.
func Go[T any](fn func() T) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.panicV = r
				h.stack = debug.Stack()
			}
		}()
		h.result = fn()
	}()
	return h
}

// Run executes fn on the calling goroutine and returns an already
// completed handle.
func Run[T any](fn func() T) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{})}
	h.result = fn()
	close(h.done)
	return h
}

// Wait blocks until the task completes and returns its result.
func (h *Handle[T]) Wait() T {
	<-h.done
	if h.panicV != nil {
		panic(&PanicError{Value: h.panicV, Stack: h.stack})
	}
	return h.result
}

// Done reports whether the task has completed without blocking.
func (h *Handle[T]) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// PanicError carries a panic out of a task to the joining goroutine.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v\n%s", e.Value, e.Stack)
}
