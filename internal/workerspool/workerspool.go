// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool rate-limits the goroutines that emulate the blocks of a
// kernel launch. A launch can easily have thousands of blocks; the pool keeps
// roughly NumCPU of them in flight instead of spawning one goroutine each.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool is a soft cap on concurrently running tasks. The zero value is not
// usable, call New.
type Pool struct {
	// maxParallelism is a soft target: 0 disables parallelism (tasks run
	// inline), negative means unlimited.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning decreases.
	numRunning int
}

// New returns a Pool targeting runtime.NumCPU() parallel tasks.
func New() *Pool {
	p := &Pool{maxParallelism: runtime.NumCPU()}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// SetMaxParallelism changes the parallelism target: 0 runs every task inline,
// negative removes the cap. Only call before tasks start.
func (p *Pool) SetMaxParallelism(maxParallelism int) {
	p.maxParallelism = maxParallelism
}

// WaitToStart blocks until a worker slot is free, then runs task on its own
// goroutine. It does not wait for the task to finish; the caller synchronizes
// completion (typically with a sync.WaitGroup).
func (p *Pool) WaitToStart(task func()) {
	if p.maxParallelism < 0 {
		go task()
		return
	}
	if p.maxParallelism == 0 {
		task()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.numRunning >= p.maxParallelism {
		p.cond.Wait()
	}
	p.numRunning++
	go func() {
		task()
		p.mu.Lock()
		p.numRunning--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}
