package client

import (
	"sync"
	"time"

	"drawboard/internal/models"
)

// Live preview tuning: at most one segment queued per throttle interval,
// queued segments coalesced and flushed once per batch interval.
const (
	DefaultSegmentThrottle = 30 * time.Millisecond
	DefaultBatchInterval   = 50 * time.Millisecond
)

// SegmentRelay throttles and coalesces in-progress path segments for
// low-latency peer preview. Offered segments replace each other within a
// batch window; a single timer, armed on the first buffered segment,
// flushes only the most recent one. The final stroke is authoritative, so
// Cancel on gesture end discards anything still buffered with no trailing
// flush.
//
// The mutex is only there because the flush timer fires on its own
// goroutine; all offers come from the caller's event loop.
type SegmentRelay struct {
	mu       sync.Mutex
	throttle time.Duration
	batch    time.Duration
	emit     func(*models.PathSegment)

	lastQueued time.Time
	buffered   *models.PathSegment
	timer      *time.Timer
}

// NewSegmentRelay creates a relay that hands flushed segments to emit.
// Zero durations select the defaults.
func NewSegmentRelay(throttle, batch time.Duration, emit func(*models.PathSegment)) *SegmentRelay {
	if throttle <= 0 {
		throttle = DefaultSegmentThrottle
	}
	if batch <= 0 {
		batch = DefaultBatchInterval
	}
	return &SegmentRelay{throttle: throttle, batch: batch, emit: emit}
}

// Offer queues a segment for relay if the throttle interval has elapsed
// since the last queued one. Reports whether the segment was queued;
// segments offered inside the throttle interval are simply dropped.
func (r *SegmentRelay) Offer(seg *models.PathSegment) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastQueued) < r.throttle {
		return false
	}
	r.lastQueued = now
	r.buffered = seg

	if r.timer == nil {
		r.timer = time.AfterFunc(r.batch, r.flush)
	}
	return true
}

// Cancel stops any armed timer and clears the buffer. Called on gesture
// end and on disconnect.
func (r *SegmentRelay) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.buffered = nil
	r.lastQueued = time.Time{}
}

func (r *SegmentRelay) flush() {
	r.mu.Lock()
	seg := r.buffered
	r.buffered = nil
	r.timer = nil
	r.mu.Unlock()

	if seg != nil {
		r.emit(seg)
	}
}
