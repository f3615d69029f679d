package bvar

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

const cacheLineSize = 64

// Agent is a worker-private shard of a Combiner.
//
// A worker obtains its agent once via Combiner.Agent and keeps it for its
// lifetime; Add on an agent only takes the agent's own mutex, which is
// uncontended unless the combiner is folding. Release hands the agent back
// when the worker goes away.
type Agent[T any] struct {
	mu       sync.Mutex
	value    T
	id       uint64
	released bool
	owner    *Combiner[T]
	_        [cacheLineSize]byte
}

// ID returns the agent's creation sequence number (starting at 1).
func (a *Agent[T]) ID() uint64 { return a.id }

// Add combines v into the agent's value.
// Values added after Release are routed through the combiner so they are not lost.
func (a *Agent[T]) Add(v T) {
	op := a.owner.op
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		a.owner.Add(v)
		return
	}
	a.value = op.Combine(a.value, op.Modify(v))
	a.mu.Unlock()

	if m := a.owner.mirror.Load(); m != nil {
		m.Add(v)
	}
}

// Release folds the agent's value into the combiner and removes the agent from the fold set.
func (a *Agent[T]) Release() {
	c := a.owner
	c.mu.Lock()
	defer c.mu.Unlock()

	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		c.reportInvariantViolation("agent_released_twice", a.id)
		return
	}
	a.released = true
	v := a.value
	a.value = c.identity
	a.mu.Unlock()

	c.residual = c.op.Combine(c.residual, v)
	for i, x := range c.agents {
		if x == a {
			c.agents = append(c.agents[:i], c.agents[i+1:]...)
			break
		}
	}
}

// ShardSnapshot is a point-in-time copy of one agent.
type ShardSnapshot[T any] struct {
	ID    uint64
	Value T
}

// agentSlot is what the combiner's pool hands out. When the runtime drops a
// slot from the pool, a cleanup returns its agent to the idle list.
type agentSlot[T any] struct {
	agent *Agent[T]
}

// Combiner keeps one Agent per worker and folds them on demand with Op.
//
// Values are never lost: released agents are folded into a residual value,
// and agents whose pool slot was collected are parked on an idle list (value
// intact) and handed to the next worker that needs one.
type Combiner[T any] struct {
	identity T
	op       Op[T]
	logger   Logger

	// mu guards nextID, agents, idle and residual. Lock order: mu, then Agent.mu.
	mu       sync.Mutex
	nextID   uint64
	agents   []*Agent[T] // creation order
	idle     []*Agent[T]
	residual T

	pool sync.Pool // *agentSlot[T]
	name atomic.Pointer[string]
	// mirror receives a copy of every value added after it is set.
	mirror atomic.Pointer[Combiner[T]]

	invariants invariantReporter
}

// NewCombiner constructs a Combiner with the given identity element and op.
func NewCombiner[T any](identity T, op Op[T], name string) *Combiner[T] {
	c := &Combiner[T]{
		identity: identity,
		op:       op,
		logger:   defaultLogger(),
		nextID:   1,
		residual: identity,
	}
	c.SetName(name)
	c.pool.New = func() interface{} { return c.newSlot() }
	return c
}

// Agent creates a new agent for the calling worker.
func (c *Combiner[T]) Agent() *Agent[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newAgentLocked()
}

func (c *Combiner[T]) newAgentLocked() *Agent[T] {
	a := &Agent[T]{value: c.identity, id: c.nextID, owner: c}
	c.nextID++
	c.agents = append(c.agents, a)
	return a
}

func (c *Combiner[T]) newSlot() *agentSlot[T] {
	c.mu.Lock()
	var a *Agent[T]
	if n := len(c.idle); n > 0 {
		a = c.idle[n-1]
		c.idle[n-1] = nil
		c.idle = c.idle[:n-1]
	} else {
		a = c.newAgentLocked()
	}
	c.mu.Unlock()

	s := &agentSlot[T]{agent: a}
	runtime.AddCleanup(s, c.park, a)
	return s
}

// park puts an agent whose slot was collected on the idle list.
func (c *Combiner[T]) park(a *Agent[T]) {
	c.mu.Lock()
	c.idle = append(c.idle, a)
	c.mu.Unlock()
}

// Add combines v into the agent currently cached for this P.
func (c *Combiner[T]) Add(v T) {
	s := c.pool.Get().(*agentSlot[T])
	s.agent.Add(v)
	c.pool.Put(s)
}

// Value folds every agent, in creation order, starting from identity.
// The result is a weakly consistent snapshot under concurrent Add calls.
func (c *Combiner[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()

	acc := c.op.Combine(c.identity, c.residual)
	for _, a := range c.agents {
		a.mu.Lock()
		v := a.value
		a.mu.Unlock()
		acc = c.op.Combine(acc, v)
	}
	return acc
}

// Reset returns the folded value and sets every agent back to identity.
// Each agent is read and cleared under its own lock, so an Add lands either
// in the returned value or in the next period, never in neither.
func (c *Combiner[T]) Reset() T {
	c.mu.Lock()
	defer c.mu.Unlock()

	acc := c.op.Combine(c.identity, c.residual)
	c.residual = c.identity
	for _, a := range c.agents {
		a.mu.Lock()
		v := a.value
		a.value = c.identity
		a.mu.Unlock()
		acc = c.op.Combine(acc, v)
	}
	return acc
}

// Shards returns a snapshot of every live agent in creation order.
func (c *Combiner[T]) Shards() []ShardSnapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ShardSnapshot[T], 0, len(c.agents))
	for _, a := range c.agents {
		a.mu.Lock()
		out = append(out, ShardSnapshot[T]{ID: a.id, Value: a.value})
		a.mu.Unlock()
	}
	return out
}

// AgentCount returns the number of live agents.
func (c *Combiner[T]) AgentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.agents)
}

// Mirror forwards every value added from now on to m as well.
// A nil m stops forwarding.
func (c *Combiner[T]) Mirror(m *Combiner[T]) {
	c.mirror.Store(m)
}

// Identity returns the identity element.
func (c *Combiner[T]) Identity() T { return c.identity }

// Op returns the combine op.
func (c *Combiner[T]) Op() Op[T] { return c.op }

// Name returns the display name.
func (c *Combiner[T]) Name() string {
	if p := c.name.Load(); p != nil {
		return *p
	}
	return ""
}

// SetName replaces the display name.
func (c *Combiner[T]) SetName(name string) {
	c.name.Store(&name)
}

func (c *Combiner[T]) reportInvariantViolation(kind string, agentID uint64) {
	c.invariants.report(c.logger, kind, fmt.Sprintf("combiner %q agent %d", c.Name(), agentID))
}
