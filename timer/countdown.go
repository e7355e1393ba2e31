// timer/countdown.go
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/typeracer/logger"
)

// OnTick receives the remaining tick count after each interval. finished is
// true exactly once, on the tick that reaches zero.
type OnTick func(remaining int, finished bool)

// Countdown fires a callback once per interval until its tick counter reaches
// zero, then stops itself. Start and Stop are idempotent; Stop on an
// already-stopped countdown is a no-op.
type Countdown struct {
	interval time.Duration
	ticks    int
	onTick   OnTick
	clock    clockwork.Clock

	mutex    sync.Mutex
	running  bool
	stopChan chan struct{}
}

func New(interval time.Duration, ticks int, onTick OnTick) *Countdown {
	return NewWithClock(clockwork.NewRealClock(), interval, ticks, onTick)
}

func NewWithClock(clock clockwork.Clock, interval time.Duration, ticks int, onTick OnTick) *Countdown {
	if ticks < 1 {
		logger.Log.Errorf("countdown ticks must be greater than 0, got %d; clamping to 1", ticks)
		ticks = 1
	}
	return &Countdown{
		interval: interval,
		ticks:    ticks,
		onTick:   onTick,
		clock:    clock,
	}
}

func (c *Countdown) IsRunning() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.running
}

func (c *Countdown) Start() {
	c.mutex.Lock()
	if c.running {
		c.mutex.Unlock()
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})
	stop := c.stopChan
	c.mutex.Unlock()

	go c.run(stop)
}

func (c *Countdown) Stop() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopChan)
}

func (c *Countdown) run(stop chan struct{}) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	remaining := c.ticks
	for {
		select {
		case <-ticker.Chan():
			remaining--
			if remaining <= 0 {
				// Halt before the final callback so a Stop from inside
				// the callback is a no-op.
				c.Stop()
				c.onTick(0, true)
				return
			}
			c.onTick(remaining, false)
		case <-stop:
			return
		}
	}
}
