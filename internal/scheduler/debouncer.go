package scheduler

import (
	"sync"
	"time"
)

// Debouncer coalesces bursty Trigger() calls into a single callback
// invocation fired only after a full quiescent duration. Adapted from the
// Rust `Debouncer`'s reset-channel + cancel-notify shape: a dedicated
// goroutine owns a timer; Trigger resets it; Stop tears the goroutine down.
type Debouncer struct {
	resetCh chan struct{}
	stopCh  chan struct{}
	once    sync.Once
}

// NewDebouncer starts the debouncer's background goroutine, invoking fn
// after duration has elapsed since the most recent Trigger call.
func NewDebouncer(duration time.Duration, fn func()) *Debouncer {
	d := &Debouncer{
		resetCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-d.stopCh:
				return
			case <-d.resetCh:
				timer := time.NewTimer(duration)
			inner:
				for {
					select {
					case <-d.stopCh:
						timer.Stop()
						return
					case <-d.resetCh:
						if !timer.Stop() {
							<-timer.C
						}
						timer.Reset(duration)
					case <-timer.C:
						fn()
						break inner
					}
				}
			}
		}
	}()

	return d
}

// Trigger resets the quiescence timer, coalescing with any trigger
// already pending.
func (d *Debouncer) Trigger() {
	select {
	case d.resetCh <- struct{}{}:
	default:
	}
}

// Stop tears down the debouncer's goroutine. Safe to call more than once.
func (d *Debouncer) Stop() {
	d.once.Do(func() { close(d.stopCh) })
}
