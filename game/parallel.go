package game

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/flap/components"
)

// policySnapshot captures read-only policy inputs for one agent.
type policySnapshot struct {
	live   int // index into Game.live
	policy components.Policy
	inputs [3]float64
}

// workChunk represents a range of snapshots for a worker to process.
type workChunk struct {
	start, end int
}

// parallelState holds resources for batched policy evaluation.
type parallelState struct {
	snapshots  []policySnapshot
	decisions  []float64
	numWorkers int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newParallelState() *parallelState {
	return &parallelState{
		numWorkers: runtime.GOMAXPROCS(0),
		snapshots:  make([]policySnapshot, 0, 64),
		decisions:  make([]float64, 0, 64),
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *parallelState) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.computeChunk(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// computeChunk evaluates the policies of snapshots [i0, i1).
func (p *parallelState) computeChunk(i0, i1 int) {
	for i := i0; i < i1; i++ {
		s := &p.snapshots[i]
		p.decisions[i] = s.policy.Decide(s.inputs[0], s.inputs[1], s.inputs[2])
	}
}

// computeParallel dispatches work to the worker pool and waits for it.
func (p *parallelState) computeParallel(n int) {
	if !p.running {
		p.startWorkers()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end}
		chunksDispatched++
	}

	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}

// evaluatePolicies computes every live agent's decision before any physics.
func (g *Game) evaluatePolicies() {
	p := g.parallel

	// Phase A: snapshot inputs (single-threaded)
	p.snapshots = p.snapshots[:0]
	for i := range g.live {
		la := &g.live[i]
		p.snapshots = append(p.snapshots, policySnapshot{
			live:   i,
			policy: la.agent.Policy,
			inputs: g.targetInputs(la.pos.Y),
		})
	}

	n := len(p.snapshots)
	if cap(p.decisions) < n {
		p.decisions = make([]float64, n)
	}
	p.decisions = p.decisions[:n]
	if n == 0 {
		return
	}

	// Phase B: evaluate - single or parallel based on population
	threshold := g.cfg.Simulation.ParallelThreshold
	if threshold <= 0 || n < threshold || p.numWorkers < 2 {
		p.computeChunk(0, n)
	} else {
		p.computeParallel(n)
	}
}
