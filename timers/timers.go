// Package timers manages a set of timers with a single time.Timer.
// The client uses it to run scheduled presence changes.
//
// Pending timers are kept in a list ordered by trigger time.  When
// the head of that list changes, the internal timer is replaced with
// one that waits for the new head.  That's fine for dozens or a few
// hundred timers, not for many thousands.
//
// A timer's work runs in its own goroutine, so it may block.
package timers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Comcast/cordial/util"

	"github.com/rs/zerolog"
)

var (
	NotFound       = errors.New("timer not found")
	TooMany        = errors.New("too many timers")
	IDExists       = errors.New("timer id exists")
	NotRunning     = errors.New("timers not running")
	AlreadyRunning = errors.New("timers already running")
)

// Timer is some work to be done in the future.
type Timer struct {
	// ID is unique across the timers of one Timers.
	ID string `json:"id"`

	// F is the work.  It gets the Timer so one function can
	// serve many timers.
	F func(context.Context, *Timer) `json:"-"`

	// At is when F should run.
	At time.Time `json:"at"`

	// Executed is written when F actually runs.
	Executed time.Time `json:"executed"`
}

// Timers is a managed set of Timer instances.
//
// Run must be running before Add is called.
type Timers struct {
	Max   int  `json:"max"`
	Debug bool `json:"-"`

	mu      sync.Mutex
	up      chan *Timer
	backlog []*Timer
	running int32
	ready   chan bool
	logger  zerolog.Logger
}

// NewTimers makes a Timers that holds at most max pending timers.
func NewTimers(max int, logger *zerolog.Logger) *Timers {
	initial := max / 4
	if initial < 8 {
		initial = 8
	}
	return &Timers{
		Max:     max,
		up:      make(chan *Timer, 32),
		backlog: make([]*Timer, 0, initial),
		ready:   make(chan bool, 1),
		logger:  util.Component(logger, "timers"),
	}
}

// Run processes timers in the current goroutine until ctx is done.
func (ts *Timers) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&ts.running, 0, 1) {
		return AlreadyRunning
	}
	ts.ready <- true

	var timer *time.Timer
LOOP:
	for {
		select {
		case <-ctx.Done():
			break LOOP
		case t := <-ts.up:
			if timer != nil {
				timer.Stop()
			}
			d := time.Until(t.At)
			ts.debugf("timer %s in %s", t.ID, d)
			timer = time.AfterFunc(d, func() {
				// Only fire if the timer wasn't removed
				// after it was scheduled.
				if ts.Rem(t.ID) != nil {
					return
				}
				t.Executed = time.Now()
				ts.debugf("timer %s firing", t.ID)
				go t.F(ctx, t)
			})
		}
	}

	if timer != nil {
		timer.Stop()
	}
	select {
	case <-ts.ready:
	default:
	}
	atomic.StoreInt32(&ts.running, 0)

	return nil
}

// IsRunning reports whether Run is executing.
func (ts *Timers) IsRunning() bool {
	return atomic.LoadInt32(&ts.running) == 1
}

// Wait waits until Run has started.
func (ts *Timers) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case b := <-ts.ready:
		ts.ready <- b
		return true
	}
}

// Add schedules t.
func (ts *Timers) Add(t *Timer) error {
	if !ts.IsRunning() {
		return NotRunning
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if len(ts.backlog) == ts.Max {
		return TooMany
	}
	for _, x := range ts.backlog {
		if x.ID == t.ID {
			return IDExists
		}
	}

	n := len(ts.backlog)
	i := sort.Search(n, func(i int) bool {
		return ts.backlog[i].At.After(t.At)
	})
	ts.debugf("add %s at %d of %d", t.ID, i, n)

	ts.backlog = append(ts.backlog, nil)
	copy(ts.backlog[i+1:], ts.backlog[i:])
	ts.backlog[i] = t
	if i == 0 {
		ts.reset()
	}
	return nil
}

// Rem removes the timer with the given id.
func (ts *Timers) Rem(id string) error {
	if !ts.IsRunning() {
		return NotRunning
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	for i, t := range ts.backlog {
		if t.ID != id {
			continue
		}
		ts.debugf("rem %s at %d", id, i)
		copy(ts.backlog[i:], ts.backlog[i+1:])
		ts.backlog[len(ts.backlog)-1] = nil
		ts.backlog = ts.backlog[:len(ts.backlog)-1]
		if i == 0 {
			ts.reset()
		}
		return nil
	}
	return NotFound
}

// Pending returns the ids of the pending timers, soonest first.
func (ts *Timers) Pending() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	acc := make([]string, len(ts.backlog))
	for i, t := range ts.backlog {
		acc[i] = t.ID
	}
	return acc
}

// Repeat adds a timer that runs f at next(now) and then reschedules
// itself the same way after every firing.  It stops when next returns
// the zero time or when the timer is removed.
func (ts *Timers) Repeat(id string, next func(time.Time) time.Time, f func(context.Context, *Timer)) error {
	at := next(time.Now())
	if at.IsZero() {
		return nil
	}
	var g func(context.Context, *Timer)
	g = func(ctx context.Context, t *Timer) {
		f(ctx, t)
		if ctx.Err() != nil {
			return
		}
		at := next(time.Now())
		if at.IsZero() {
			return
		}
		if err := ts.Add(&Timer{ID: id, At: at, F: g}); err != nil {
			ts.logger.Warn().Err(err).Str("id", id).Msg("couldn't reschedule")
		}
	}
	return ts.Add(&Timer{ID: id, At: at, F: g})
}

// reset tells Run about a new head.  ts.mu must be held.
func (ts *Timers) reset() {
	if 0 < len(ts.backlog) {
		ts.up <- ts.backlog[0]
	}
}

func (ts *Timers) debugf(format string, args ...interface{}) {
	if ts.Debug {
		ts.logger.Debug().Msgf(format, args...)
	}
}
