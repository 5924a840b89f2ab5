/*
 * Copyright 2024 caiflower Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/caiflower/staticd/pkg/e"
	"github.com/caiflower/staticd/pkg/logger"
)

var (
	ErrPoolShutdown = errors.New("worker pool is shut down")
	ErrInvalidSize  = errors.New("worker pool size must be at least 1")
	ErrNilJob       = errors.New("nil job")
)

// Job is executed exactly once by exactly one worker.
type Job func()

type Option func(*WorkerPool)

func WithName(name string) Option {
	return func(p *WorkerPool) {
		p.name = name
	}
}

func WithLogger(log logger.ILog) Option {
	return func(p *WorkerPool) {
		p.logger = log
	}
}

// WorkerPool is a fixed set of workers draining one unbounded FIFO queue.
//
// Shutdown stops accepting jobs, discards jobs that are still queued and
// waits for every worker to finish the job it is running. A queued job is
// therefore either run to completion or never started.
type WorkerPool struct {
	name   string
	size   int
	logger logger.ILog

	mu       sync.Mutex
	notEmpty *sync.Cond
	queue    []Job
	head     int
	closed   bool

	workers   sync.WaitGroup
	running   int64
	completed int64
	panics    int64
}

func New(size int, opts ...Option) (*WorkerPool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}

	p := &WorkerPool{
		name:   "pool",
		size:   size,
		logger: logger.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.notEmpty = sync.NewCond(&p.mu)

	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go p.work(i)
	}
	p.logger.Debug("[%s] started %d workers", p.name, size)

	return p, nil
}

// Execute enqueues job and returns immediately. It fails with ErrPoolShutdown
// once Shutdown has been called.
func (p *WorkerPool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolShutdown
	}
	p.queue = append(p.queue, job)
	p.notEmpty.Signal()
	return nil
}

// Shutdown is idempotent. It returns after every worker has exited.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.workers.Wait()
		return
	}
	p.closed = true
	dropped := len(p.queue) - p.head
	p.queue = nil
	p.head = 0
	p.notEmpty.Broadcast()
	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Warn("[%s] shutdown discarded %d queued jobs", p.name, dropped)
	}
	p.workers.Wait()
	p.logger.Info("[%s] all %d workers stopped. completed=%d", p.name, p.size, p.Completed())
}

// next blocks until a job is available. ok is false once the pool is closed.
func (p *WorkerPool) next() (job Job, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.head == len(p.queue) && !p.closed {
		p.notEmpty.Wait()
	}
	if p.closed {
		return nil, false
	}

	job = p.queue[p.head]
	p.queue[p.head] = nil
	p.head++
	// 队列为空时回收底层数组
	if p.head == len(p.queue) {
		p.queue = p.queue[:0]
		p.head = 0
	}
	return job, true
}

func (p *WorkerPool) work(id int) {
	defer p.workers.Done()

	for {
		job, ok := p.next()
		if !ok {
			p.logger.Debug("[%s] worker %d disconnected; shutting down", p.name, id)
			return
		}
		p.run(id, job)
	}
}

func (p *WorkerPool) run(id int, job Job) {
	atomic.AddInt64(&p.running, 1)
	defer func() {
		atomic.AddInt64(&p.running, -1)
		atomic.AddInt64(&p.completed, 1)
	}()
	defer e.OnErrorHook(fmt.Sprintf("[%s] worker %d", p.name, id), func(interface{}) {
		atomic.AddInt64(&p.panics, 1)
	})

	job()
}

func (p *WorkerPool) Size() int {
	return p.size
}

// Pending is the number of queued jobs no worker has picked up yet.
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) - p.head
}

func (p *WorkerPool) Running() int {
	return int(atomic.LoadInt64(&p.running))
}

// Completed counts finished jobs, including ones that panicked.
func (p *WorkerPool) Completed() int64 {
	return atomic.LoadInt64(&p.completed)
}

func (p *WorkerPool) Panics() int64 {
	return atomic.LoadInt64(&p.panics)
}

func (p *WorkerPool) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
