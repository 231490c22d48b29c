package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Phase is the position of a Chain in its lifecycle.
type Phase int

const (
	PhasePending Phase = iota
	PhaseRunning
	PhaseStepSucceeded
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRunning:
		return "running"
	case PhaseStepSucceeded:
		return "step_succeeded"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// State is a Chain's phase together with the step it applies to. Succeeded is
// only meaningful once Phase is PhaseTerminated.
type State struct {
	Phase     Phase
	Step      int
	Succeeded bool
}

// Resolver computes the step that follows completed, which ran at position step.
// Returning (nil, nil) ends the chain successfully. Returning an error ends it
// with that error and no further step is built.
type Resolver func(completed Connector, step int) (Connector, error)

// ErrChainExecuted is returned by Execute on a chain that has already run.
var ErrChainExecuted = errors.New("connector chain has already been executed")

// Chain runs connectors strictly one after another. Each successor is computed
// by the resolver from the step that just completed, so the chain grows while
// it runs. The chain's own result mirrors its last step.
type Chain struct {
	Result

	resolver Resolver
	logger   zerolog.Logger

	mu    sync.RWMutex
	steps []Connector
	state State
}

// NewChain creates a chain starting at head. A nil resolver makes a single-step chain.
func NewChain(head Connector, resolver Resolver, logger zerolog.Logger) *Chain {
	return &Chain{
		resolver: resolver,
		logger:   logger.With().Str("component", "ConnectorChain").Logger(),
		steps:    []Connector{head},
		state:    State{Phase: PhasePending},
	}
}

// State returns the current lifecycle state.
func (c *Chain) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Steps returns the connectors appended so far, in execution order.
func (c *Chain) Steps() []Connector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Connector, len(c.steps))
	copy(out, c.steps)
	return out
}

// Current returns the most recently appended step.
func (c *Chain) Current() Connector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.steps[len(c.steps)-1]
}

// Execute runs the chain to a terminal state. The first failing step's error
// is recorded on the chain verbatim and returned.
func (c *Chain) Execute(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase != PhasePending {
		c.mu.Unlock()
		return ErrChainExecuted
	}
	c.state = State{Phase: PhaseRunning}
	c.mu.Unlock()

	for step := 0; ; step++ {
		current := c.Current()
		if step > 0 {
			c.transition(State{Phase: PhaseRunning, Step: step})
		}

		if err := ctx.Err(); err != nil {
			return c.fail(step, NewTransportError(0, fmt.Errorf("chain cancelled before step %d: %w", step, err)))
		}

		_ = current.Execute(ctx)
		if err := current.LastError(); err != nil {
			c.logger.Debug().Err(err).Int("step", step).Msg("Chain step failed, terminating.")
			return c.fail(step, err)
		}
		c.transition(State{Phase: PhaseStepSucceeded, Step: step})

		if c.resolver == nil {
			return c.succeed(step, current)
		}
		next, err := c.resolver(current, step)
		if err != nil {
			c.logger.Debug().Err(err).Int("step", step).Msg("Resolver rejected step result, terminating.")
			return c.fail(step, err)
		}
		if next == nil {
			return c.succeed(step, current)
		}

		c.mu.Lock()
		c.steps = append(c.steps, next)
		c.mu.Unlock()
	}
}

func (c *Chain) transition(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Chain) succeed(step int, last Connector) error {
	c.record(last.ResultData(), nil)
	c.transition(State{Phase: PhaseTerminated, Step: step, Succeeded: true})
	return nil
}

func (c *Chain) fail(step int, err error) error {
	c.record(nil, err)
	c.transition(State{Phase: PhaseTerminated, Step: step})
	return err
}
