// Package cpu models the cores of the simulated machine.
//
// A CPU stands in for one hardware hart. It carries the interrupt-enable flag
// and the PushOff nesting depth that spin locks rely on. A CPU is driven by
// one goroutine at a time, the same way a hart runs one thread at a time; its
// fields are therefore not synchronised.
package cpu

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kcore/internal/fatal"
)

// CPU is one simulated core.
type CPU struct {
	id     int
	intr   bool // interrupt delivery enabled
	noff   int  // depth of PushOff nesting
	intena bool // were interrupts enabled before the outermost PushOff?
	logger *slog.Logger
}

// ID returns the core number. Interrupts must be off: a timer interrupt could
// move the running thread to another core between reading the id and using it.
func (c *CPU) ID() int {
	if c.intr {
		fatal.Halt(c.logger, "cpuid", "interrupts enabled on cpu %d", c.id)
	}
	return c.id
}

// IntrOn enables interrupt delivery.
func (c *CPU) IntrOn() { c.intr = true }

// IntrOff disables interrupt delivery.
func (c *CPU) IntrOff() { c.intr = false }

// IntrGet reports whether interrupt delivery is enabled.
func (c *CPU) IntrGet() bool { return c.intr }

// PushOff disables interrupts and records the nesting depth. It is matched by
// PopOff; it takes two PopOffs to undo two PushOffs, and interrupts come back
// on only if they were on before the outermost PushOff.
func (c *CPU) PushOff() {
	old := c.intr
	c.IntrOff()
	if c.noff == 0 {
		c.intena = old
	}
	c.noff++
}

// PopOff undoes one PushOff.
func (c *CPU) PopOff() {
	if c.intr {
		fatal.Halt(c.logger, "pop_off", "interruptible on cpu %d", c.id)
	}
	if c.noff < 1 {
		fatal.Halt(c.logger, "pop_off", "unbalanced on cpu %d", c.id)
	}
	c.noff--
	if c.noff == 0 && c.intena {
		c.IntrOn()
	}
}

// Depth returns the current PushOff nesting depth. A non-zero depth means the
// core holds at least one spin lock or is inside a PushOff section.
func (c *CPU) Depth() int { return c.noff }

func (c *CPU) String() string { return fmt.Sprintf("cpu%d", c.id) }

// Machine is a fixed set of cores.
type Machine struct {
	cpus []*CPU
}

// NewMachine creates n cores with interrupts enabled.
func NewMachine(n int, logger *slog.Logger) *Machine {
	if n <= 0 {
		n = 1
	}
	logger = fatal.OrDiscard(logger)

	m := &Machine{cpus: make([]*CPU, n)}
	for i := range n {
		m.cpus[i] = &CPU{id: i, intr: true, logger: logger}
	}
	return m
}

// NCPU returns the number of cores.
func (m *Machine) NCPU() int { return len(m.cpus) }

// CPU returns core i.
func (m *Machine) CPU(i int) *CPU { return m.cpus[i] }

// Each runs fn once per core, each on its own goroutine, and waits for all of
// them. The first error cancels ctx for the others and is returned.
func (m *Machine) Each(ctx context.Context, fn func(ctx context.Context, c *CPU) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range m.cpus {
		g.Go(func() error {
			return fn(ctx, c)
		})
	}
	return g.Wait()
}
