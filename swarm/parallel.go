package swarm

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum agent count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// workChunk is a half-open index range [start, end) handed to one worker.
type workChunk struct {
	start, end int
}

// kernelPool runs data-parallel kernels over agent index ranges using
// persistent worker goroutines. A launch is a barrier: run returns only after
// every chunk has been processed, so kernels within one step never overlap.
type kernelPool struct {
	workers int

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	// kernel is the function dispatched to workers for the current launch.
	// Launches are strictly serial, so plain assignment before dispatch is
	// safe.
	kernel func(start, end int)
}

func newKernelPool(workers int) *kernelPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &kernelPool{workers: workers}
}

func (p *kernelPool) start() {
	if p.running {
		return
	}
	p.workChan = make(chan workChunk, p.workers)
	p.doneChan = make(chan struct{}, p.workers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *kernelPool) stop() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *kernelPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.kernel(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// run executes kernel over [0, n) split into one chunk per worker. Small n
// runs inline on the calling goroutine.
func (p *kernelPool) run(n int, kernel func(start, end int)) {
	if n <= 0 {
		return
	}
	if n < parallelThreshold || p.workers == 1 {
		kernel(0, n)
		return
	}
	if !p.running {
		p.start()
	}

	p.kernel = kernel
	chunkSize := (n + p.workers - 1) / p.workers

	dispatched := 0
	for w := 0; w < p.workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}
