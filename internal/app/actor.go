package app

import (
	"context"
	"time"
)

type job struct {
	ctx context.Context
	run func(context.Context)
}

// gameActor runs every job for one game id, one at a time, in submission order.
type gameActor struct {
	gameID  string
	jobs    chan job
	pending int // guarded by Coordinator.mu
}

// submit queues fn on the actor for gameID and waits for its result or for
// ctx to end. Once queued, fn runs to completion regardless of ctx.
func submit[T any](c *Coordinator, ctx context.Context, gameID string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	a, err := c.acquire(gameID)
	if err != nil {
		return zero, err
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	j := job{
		ctx: context.WithoutCancel(ctx),
		run: func(jctx context.Context) {
			v, err := fn(jctx)
			done <- result{val: v, err: err}
		},
	}

	select {
	case a.jobs <- j:
	case <-ctx.Done():
		c.release(a)
		return zero, ctx.Err()
	case <-c.stop:
		c.release(a)
		return zero, ErrCoordinatorClosed
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Coordinator) acquire(gameID string) (*gameActor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCoordinatorClosed
	}
	a, ok := c.actors[gameID]
	if !ok {
		a = &gameActor{gameID: gameID, jobs: make(chan job, c.mailbox)}
		c.actors[gameID] = a
		c.wg.Add(1)
		go c.loop(a)
	}
	a.pending++
	return a, nil
}

func (c *Coordinator) release(a *gameActor) {
	c.mu.Lock()
	a.pending--
	c.mu.Unlock()
}

func (c *Coordinator) loop(a *gameActor) {
	defer c.wg.Done()
	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case j := <-a.jobs:
			j.run(j.ctx)
			c.release(a)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.idleTimeout)
		case <-idle.C:
			if c.retire(a) {
				return
			}
			idle.Reset(c.idleTimeout)
		case <-c.stop:
			c.drain(a)
			return
		}
	}
}

// retire removes the actor when nothing is queued or about to be.
func (c *Coordinator) retire(a *gameActor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.pending > 0 {
		return false
	}
	delete(c.actors, a.gameID)
	return true
}

// drain runs jobs that were already accepted before shutdown.
func (c *Coordinator) drain(a *gameActor) {
	for {
		c.mu.Lock()
		pending := a.pending
		c.mu.Unlock()
		if pending == 0 {
			return
		}
		select {
		case j := <-a.jobs:
			j.run(j.ctx)
			c.release(a)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
