package journal

import (
	"sort"
	"sync"
	"time"
)

// debouncer runs at most one pending action per id after an idle delay.
// Scheduling again for the same id replaces the pending action.
//
// Runs for one id are serialized, and an action never runs after a newer
// action for the same id has run, so the last scheduled write always lands
// last. Flush and Stop return only once no action is running.
type debouncer struct {
	delay time.Duration

	mu       sync.Mutex
	idle     *sync.Cond
	seq      uint64
	pending  map[string]*pendingAction
	gates    map[string]*runGate
	inflight int
}

type pendingAction struct {
	seq   uint64
	timer *time.Timer
	run   func()
}

// runGate serializes the runs for one id and remembers the newest one.
type runGate struct {
	mu  sync.Mutex
	ran uint64
}

func newDebouncer(delay time.Duration) *debouncer {
	d := &debouncer{
		delay:   delay,
		pending: make(map[string]*pendingAction),
		gates:   make(map[string]*runGate),
	}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Schedule arranges for run to execute after the delay unless superseded.
func (d *debouncer) Schedule(id string, run func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[id]; ok {
		p.timer.Stop()
	}
	d.seq++
	p := &pendingAction{seq: d.seq, run: run}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(id, p) })
	d.pending[id] = p
}

func (d *debouncer) fire(id string, p *pendingAction) {
	d.mu.Lock()
	if d.pending[id] != p {
		// Superseded or flushed.
		d.mu.Unlock()
		return
	}
	delete(d.pending, id)
	d.inflight++
	gate := d.gateLocked(id)
	d.mu.Unlock()

	d.execute(gate, p)
}

// execute runs p under its id's gate and marks it finished.
func (d *debouncer) execute(gate *runGate, p *pendingAction) {
	defer func() {
		d.mu.Lock()
		d.inflight--
		if d.inflight == 0 {
			d.idle.Broadcast()
		}
		d.mu.Unlock()
	}()

	gate.mu.Lock()
	defer gate.mu.Unlock()
	if p.seq < gate.ran {
		return
	}
	gate.ran = p.seq
	p.run()
}

func (d *debouncer) gateLocked(id string) *runGate {
	g, ok := d.gates[id]
	if !ok {
		g = &runGate{}
		d.gates[id] = g
	}
	return g
}

// Flush runs every pending action now, in id order, and waits for actions
// already running.
func (d *debouncer) Flush() {
	ids, actions, gates := d.take(true)
	for i := range ids {
		d.execute(gates[i], actions[i])
	}
	d.wait()
}

// Stop discards every pending action without running it and waits for
// actions already running.
func (d *debouncer) Stop() {
	d.take(false)
	d.wait()
}

// take removes every pending action. When run is set the actions are
// counted as running and returned with their gates.
func (d *debouncer) take(run bool) ([]string, []*pendingAction, []*runGate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	actions := make([]*pendingAction, 0, len(ids))
	gates := make([]*runGate, 0, len(ids))
	for _, id := range ids {
		p := d.pending[id]
		p.timer.Stop()
		actions = append(actions, p)
		gates = append(gates, d.gateLocked(id))
	}
	d.pending = make(map[string]*pendingAction)
	if !run {
		return nil, nil, nil
	}
	d.inflight += len(actions)
	return ids, actions, gates
}

func (d *debouncer) wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.inflight > 0 {
		d.idle.Wait()
	}
}

// Pending returns the number of actions waiting to run.
func (d *debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
