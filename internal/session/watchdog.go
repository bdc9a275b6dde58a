package session

import (
	"time"

	"github.com/robfig/cron/v3"
)

// watchdog runs the §4.7 inactivity check on a 1 Hz (configurable) tick
// while streaming is enabled. It never touches store fields directly from
// its own goroutine — every tick is submitted to the session's loop, the
// same discipline the demultiplexer and timers use.
//
// Backed by a github.com/robfig/cron/v3 *cron.Cron started/stopped around
// the session's lifetime, driven by a fixed-period everySchedule rather
// than a calendar schedule.
type watchdog struct {
	cron    *cron.Cron
	entryID cron.EntryID
	active  bool
}

func newWatchdog() *watchdog {
	return &watchdog{cron: cron.New()}
}

// everySchedule is a cron.Schedule that fires a fixed period after each
// activation. Unlike cron's "@every" spec, it keeps sub-second periods.
type everySchedule time.Duration

func (d everySchedule) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

// start begins ticking at the configured period, invoking tick() on every
// fire. Does nothing if the watchdog is already active.
func (w *watchdog) start(period time.Duration, tick func()) {
	if w.active {
		return
	}
	w.entryID = w.cron.Schedule(everySchedule(period), cron.FuncJob(tick))
	w.cron.Start()
	w.active = true
}

// stop halts ticking. Safe to call when not active.
func (w *watchdog) stop() {
	if !w.active {
		return
	}
	w.cron.Remove(w.entryID)
	w.cron.Stop()
	w.active = false
}

// checkInactivity implements the §4.7 tick body. Must only run on the
// session's loop goroutine (reached via Session.enqueue from the cron
// callback).
func (s *Session) checkInactivity() {
	if !s.st.streaming {
		return
	}

	now := time.Now()
	var idleFor time.Duration
	if s.st.lastSuccessAt.IsZero() {
		idleFor = now.Sub(s.streamingStartedAt)
	} else {
		idleFor = now.Sub(s.st.lastSuccessAt)
	}

	if idleFor <= s.opts.StreamingInactivity {
		return
	}

	s.st.applyStreamingTimeout()
	s.watchdog.stop()
	s.publishSnapshot()
}
