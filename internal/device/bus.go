package device

import "sync"

// Command pairs a device with the control intent to apply to it.
type Command struct {
	Device  Device
	Control Control
}

// ControlBus is an unbounded FIFO queue carrying control commands from the
// supervisor to the capture engine. Publish never blocks and never fails:
// producers run as independently scheduled activation goroutines and must not
// stall on a slow or not-yet-ready consumer. The engine is the single
// consumer and drains commands in arrival order.
type ControlBus struct {
	mu    sync.Mutex
	queue []Command
}

// NewControlBus creates an empty control bus.
func NewControlBus() *ControlBus {
	return &ControlBus{}
}

// Publish enqueues a control command. Safe for concurrent producers.
func (b *ControlBus) Publish(d Device, c Control) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, Command{Device: d, Control: c})
}

// DrainNext pops the oldest command, or reports false if the bus is empty.
func (b *ControlBus) DrainNext() (Command, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Command{}, false
	}
	cmd := b.queue[0]
	b.queue = b.queue[1:]
	return cmd, true
}

// Len returns the number of queued commands.
func (b *ControlBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
