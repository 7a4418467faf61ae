package agent

import (
	"sync"

	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// consoleCapture buffers console events for the duration of one script
// execution. It is a scoped acquisition: construction subscribes, and
// Release unsubscribes exactly once no matter how many exit paths call it.
type consoleCapture struct {
	mu      sync.Mutex
	events  []protocol.ConsoleEvent
	release func()
	once    sync.Once
}

func newConsoleCapture(p Page) *consoleCapture {
	c := &consoleCapture{}
	c.release = p.SubscribeConsole(func(ev protocol.ConsoleEvent) {
		c.mu.Lock()
		c.events = append(c.events, ev)
		c.mu.Unlock()
	})
	return c
}

// Release detaches from the console stream. Idempotent.
func (c *consoleCapture) Release() {
	c.once.Do(c.release)
}

// Events snapshots the buffered events.
func (c *consoleCapture) Events() []protocol.ConsoleEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.ConsoleEvent, len(c.events))
	copy(out, c.events)
	return out
}
