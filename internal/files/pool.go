package files

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

var errPoolClosed = errors.New("worker pool is closed")

// Completion is the single value published for a submitted task.
type Completion struct {
	Token string
	Err   error
}

// Pool runs tasks on a bounded number of goroutines.
type Pool struct {
	slots chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool running at most size tasks at once.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Submit schedules task and returns a channel that receives exactly one
// Completion. The channel is buffered, so the worker never blocks on a
// caller that stopped waiting.
func (p *Pool) Submit(ctx context.Context, task func(context.Context) (string, error)) <-chan Completion {
	done := make(chan Completion, 1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		done <- Completion{Err: errPoolClosed}
		return done
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.slots <- struct{}{}:
			defer func() { <-p.slots }()
		case <-ctx.Done():
			done <- Completion{Err: ctx.Err()}
			return
		}

		done <- run(ctx, task)
	}()

	return done
}

// Close stops accepting tasks and waits for running ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}

func run(ctx context.Context, task func(context.Context) (string, error)) (c Completion) {
	defer func() {
		if r := recover(); r != nil {
			c = Completion{Err: fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())}
		}
	}()

	token, err := task(ctx)
	return Completion{Token: token, Err: err}
}
