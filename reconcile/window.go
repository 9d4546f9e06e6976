package reconcile

import (
	"sync"
	"time"
)

// outcomeEntry is one finalized outcome in a window's append log. Weight is 1
// for live outcomes; recovery seeds insert a single aggregate entry carrying
// the recovered count, which ages out of the window like any other entry.
type outcomeEntry struct {
	seq    uint32
	at     time.Time
	agreed bool
	weight int
}

// slidingWindow is a time-ordered append log of finalized outcomes, pruned at
// the window boundary on every read and update.
type slidingWindow struct {
	span       time.Duration
	entries    []outcomeEntry
	agreements int
	missed     int
}

func (w *slidingWindow) append(seq uint32, at time.Time, agreed bool, weight int) {
	w.prune(at)
	w.entries = append(w.entries, outcomeEntry{seq: seq, at: at, agreed: agreed, weight: weight})
	if agreed {
		w.agreements += weight
	} else {
		w.missed += weight
	}
}

// amend flips the recorded outcome for seq if it is still inside the window,
// reversing the prior count and applying the new one atomically with respect
// to the window's counters.
func (w *slidingWindow) amend(seq uint32, agreed bool) bool {
	for i := len(w.entries) - 1; i >= 0; i-- {
		entry := &w.entries[i]
		if entry.seq != seq || entry.weight != 1 {
			continue
		}
		if entry.agreed == agreed {
			return false
		}
		if entry.agreed {
			w.agreements -= entry.weight
			w.missed += entry.weight
		} else {
			w.missed -= entry.weight
			w.agreements += entry.weight
		}
		entry.agreed = agreed
		return true
	}
	return false
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	idx := 0
	for ; idx < len(w.entries); idx++ {
		if w.entries[idx].at.After(cutoff) {
			break
		}
		if w.entries[idx].agreed {
			w.agreements -= w.entries[idx].weight
		} else {
			w.missed -= w.entries[idx].weight
		}
	}
	if idx > 0 {
		w.entries = append(w.entries[:0], w.entries[idx:]...)
	}
}

// WindowCounts is a point-in-time reading of both windows.
type WindowCounts struct {
	Agreements1h  int
	Missed1h      int
	Agreements24h int
	Missed24h     int
}

// WindowedCounters maintains the 1-hour and 24-hour agreement/missed counts.
// The engine goroutine writes; snapshot reads may come from other goroutines,
// hence the mutex. "Missed" covers every finalized outcome that is not an
// agreement.
type WindowedCounters struct {
	mu   sync.Mutex
	hour slidingWindow
	day  slidingWindow
}

// NewWindowedCounters returns empty 1h/24h counters.
func NewWindowedCounters() *WindowedCounters {
	return &WindowedCounters{
		hour: slidingWindow{span: time.Hour},
		day:  slidingWindow{span: 24 * time.Hour},
	}
}

// Append records a freshly finalized outcome.
func (c *WindowedCounters) Append(seq uint32, at time.Time, outcome Outcome) {
	agreed := outcome == OutcomeAgreement
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hour.append(seq, at, agreed, 1)
	c.day.append(seq, at, agreed, 1)
}

// Amend applies a late-repair flip for seq in both windows.
func (c *WindowedCounters) Amend(seq uint32, outcome Outcome) {
	agreed := outcome == OutcomeAgreement
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hour.amend(seq, agreed)
	c.day.amend(seq, agreed)
}

// Seed injects recovered counts as aggregate entries stamped at the recovery
// time, so continuity survives a collector restart and the recovered portion
// decays out at the window boundary.
func (c *WindowedCounters) Seed(at time.Time, counts WindowCounts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counts.Agreements1h > 0 {
		c.hour.append(0, at, true, counts.Agreements1h)
	}
	if counts.Missed1h > 0 {
		c.hour.append(0, at, false, counts.Missed1h)
	}
	if counts.Agreements24h > 0 {
		c.day.append(0, at, true, counts.Agreements24h)
	}
	if counts.Missed24h > 0 {
		c.day.append(0, at, false, counts.Missed24h)
	}
}

// Snapshot prunes both windows to now and returns the current counts.
func (c *WindowedCounters) Snapshot(now time.Time) WindowCounts {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hour.prune(now)
	c.day.prune(now)
	return WindowCounts{
		Agreements1h:  c.hour.agreements,
		Missed1h:      c.hour.missed,
		Agreements24h: c.day.agreements,
		Missed24h:     c.day.missed,
	}
}
