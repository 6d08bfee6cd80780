package texvk

import (
	"fmt"

	"github.com/gogpu/texvk/internal/ledger"
	"github.com/gogpu/texvk/internal/parallel"
	"github.com/gogpu/texvk/native"
)

// Context records commands for one device. It owns the command buffer being
// recorded, the fences of submitted command buffers and the retirement
// ledger that gates destruction of objects still used by the GPU.
//
// A Context is not safe for concurrent use. Textures used with a context
// must only be touched while the caller has exclusive access to it.
type Context struct {
	dev     native.Device
	ledger  *ledger.Ledger
	cb      native.CommandBuffer
	flights []flight
	chain   *Chain
	workers *parallel.Pool
}

type flight struct {
	id    ledger.ID
	fence native.Fence
}

// NewContext returns a context recording into dev.
func NewContext(dev native.Device, opts ...ContextOption) *Context {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Context{
		dev:    dev,
		ledger: ledger.New(),
		chain:  NewChain(o.blitters...),
	}
	if o.workers > 1 {
		c.workers = parallel.NewPool(o.workers)
	}
	return c
}

// Device returns the device the context records for.
func (c *Context) Device() native.Device { return c.dev }

// Blitters returns the blitter chain used by Blit and Clear.
func (c *Context) Blitters() *Chain { return c.chain }

// CurrentID returns the ID of the command buffer being recorded.
func (c *Context) CurrentID() ledger.ID { return c.ledger.Current() }

// CompletedID returns the ID of the last command buffer known to be retired.
func (c *Context) CompletedID() ledger.ID { return c.ledger.Completed() }

// CommandBuffer returns the command buffer being recorded, beginning a new
// one if needed.
func (c *Context) CommandBuffer() (native.CommandBuffer, error) {
	if c.cb != nil {
		return c.cb, nil
	}
	cb, err := c.dev.BeginCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("texvk: begin command buffer: %w", err)
	}
	c.cb = cb
	return cb, nil
}

// reference pins r to the command buffer being recorded.
func (c *Context) reference(r *ledger.Resource) {
	r.Use(c.ledger.Current())
}

// Submit queues the command buffer being recorded, if any.
func (c *Context) Submit() error {
	if c.cb == nil {
		return nil
	}
	cb := c.cb
	c.cb = nil
	id := c.ledger.Advance()
	fence, err := c.dev.Submit(cb)
	if err != nil {
		// The command buffer never runs. Its flight has no fence and
		// retires right after the earlier ones.
		c.flights = append(c.flights, flight{id: id})
		return fmt.Errorf("texvk: submit command buffer %d: %w", id, err)
	}
	c.flights = append(c.flights, flight{id: id, fence: fence})
	return c.Poll()
}

// Poll retires every submitted command buffer whose fence signalled and
// runs the destructions waiting on them.
func (c *Context) Poll() error {
	for len(c.flights) > 0 {
		f := c.flights[0]
		if f.fence != native.Null {
			done, err := c.dev.FenceSignaled(f.fence)
			if err != nil {
				return fmt.Errorf("texvk: fence status of command buffer %d: %w", f.id, err)
			}
			if !done {
				break
			}
		}
		c.retire(f)
	}
	return nil
}

func (c *Context) retire(f flight) {
	c.flights = c.flights[1:]
	if f.fence != native.Null {
		c.dev.DestroyFence(f.fence)
	}
	c.ledger.Retire(f.id)
}

// Wait blocks until command buffer id retired. Waiting for the command
// buffer being recorded submits it first.
func (c *Context) Wait(id ledger.ID) error {
	if c.ledger.IsRetired(id) {
		return nil
	}
	if id >= c.ledger.Current() {
		if err := c.Submit(); err != nil {
			return err
		}
	}
	for len(c.flights) > 0 && !c.ledger.IsRetired(id) {
		f := c.flights[0]
		if f.fence != native.Null {
			if err := c.dev.WaitFence(f.fence); err != nil {
				return fmt.Errorf("texvk: wait for command buffer %d: %w", f.id, err)
			}
		}
		c.retire(f)
	}
	return nil
}

// Finish submits pending commands and waits for all of them.
func (c *Context) Finish() error {
	if err := c.Submit(); err != nil {
		return err
	}
	return c.Wait(c.ledger.Current() - 1)
}

// PendingDestroys returns the number of objects waiting for their command
// buffers to retire.
func (c *Context) PendingDestroys() int { return c.ledger.Pending() }

// Close finishes all work and releases every deferred object.
func (c *Context) Close() error {
	err := c.Finish()
	if werr := c.dev.WaitIdle(); err == nil && werr != nil {
		err = fmt.Errorf("texvk: wait idle: %w", werr)
	}
	c.ledger.Drain()
	c.workers.Close()
	return err
}
