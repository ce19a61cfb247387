package worker

import "context"

// Controller carries the stop and wake signals shared between the worker
// loop and the submission path.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
}

// NewController creates a Controller that stops when parent is canceled or
// Stop is called.
func NewController(parent context.Context) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}
}

// Notify wakes a worker waiting for jobs. Notifications sent while the
// worker is busy collapse into one.
func (c *Controller) Notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Stop signals the worker to exit. It is safe to call more than once.
func (c *Controller) Stop() {
	c.cancel()
}

// Stopped reports whether Stop has been called.
func (c *Controller) Stopped() bool {
	return c.ctx.Err() != nil
}

// Context is canceled once the worker should stop.
func (c *Controller) Context() context.Context {
	return c.ctx
}
