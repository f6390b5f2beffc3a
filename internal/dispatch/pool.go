// Package dispatch runs blocking work on a bounded goroutine pool and hands
// the outcome back as a completion message.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// DefaultSize bounds the number of blocking jobs running at once.
const DefaultSize = 512

// ErrPoolClosed is returned when submitting to a released pool.
var ErrPoolClosed = errors.New("dispatch pool closed")

// Result is the completion message of one job. Panic is non-nil when the job
// panicked; Value is then meaningless.
type Result struct {
	Value any
	Panic any
	Stack []byte
}

// Pool is a bounded executor for blocking jobs.
type Pool struct {
	pool *ants.Pool
}

// New creates a pool running at most size jobs at once. size <= 0 selects
// DefaultSize.
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultSize
	}
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create dispatch pool: %w", err)
	}
	return &Pool{pool: p}, nil
}

var (
	sharedOnce sync.Once
	shared     *Pool
	sharedErr  error
)

// Shared returns the process-wide pool used when a flow is not given one.
func Shared() (*Pool, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = New(DefaultSize)
	})
	return shared, sharedErr
}

// Submit schedules job and returns the channel its completion message is
// delivered on. The channel receives exactly one Result.
//
// ctx is only checked before the job is handed over; a job that started runs
// to completion.
func (p *Pool) Submit(ctx context.Context, job func() any) (<-chan Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan Result, 1)
	err := p.pool.Submit(func() {
		var res Result
		defer func() {
			if r := recover(); r != nil {
				res = Result{Panic: r, Stack: debug.Stack()}
			}
			done <- res
		}()
		res.Value = job()
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return nil, ErrPoolClosed
	}
	if err != nil {
		return nil, fmt.Errorf("submit blocking job: %w", err)
	}
	return done, nil
}

// Do submits job and waits for its completion message.
func (p *Pool) Do(ctx context.Context, job func() any) (Result, error) {
	done, err := p.Submit(ctx, job)
	if err != nil {
		return Result{}, err
	}
	return <-done, nil
}

// Running returns the number of jobs currently executing.
func (p *Pool) Running() int { return p.pool.Running() }

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Release stops accepting jobs. Running jobs finish normally.
func (p *Pool) Release() { p.pool.Release() }
