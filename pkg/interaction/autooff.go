package interaction

import (
	"time"

	"github.com/hapspan/hapspan-go/pkg/model"
)

// autoOffTimer is one armed reset.
type autoOffTimer struct {
	char     *model.Characteristic
	deadline time.Time
}

// autoOffTimers tracks armed resets in arming order.
type autoOffTimers struct {
	timers []autoOffTimer
}

func newAutoOffTimers() *autoOffTimers {
	return &autoOffTimers{}
}

// arm sets or replaces the deadline of c.
func (t *autoOffTimers) arm(c *model.Characteristic, deadline time.Time) {
	t.disarm(c)
	t.timers = append(t.timers, autoOffTimer{char: c, deadline: deadline})
}

func (t *autoOffTimers) disarm(c *model.Characteristic) {
	for i, timer := range t.timers {
		if timer.char == c {
			t.timers = append(t.timers[:i], t.timers[i+1:]...)
			return
		}
	}
}

// expire removes and returns the characteristics due at now.
func (t *autoOffTimers) expire(now time.Time) []*model.Characteristic {
	var due []*model.Characteristic
	kept := t.timers[:0]
	for _, timer := range t.timers {
		if !now.Before(timer.deadline) {
			due = append(due, timer.char)
		} else {
			kept = append(kept, timer)
		}
	}
	t.timers = kept
	return due
}

func (t *autoOffTimers) next() (time.Time, bool) {
	if len(t.timers) == 0 {
		return time.Time{}, false
	}
	earliest := t.timers[0].deadline
	for _, timer := range t.timers[1:] {
		if timer.deadline.Before(earliest) {
			earliest = timer.deadline
		}
	}
	return earliest, true
}

func (t *autoOffTimers) count() int {
	return len(t.timers)
}
