package client

import (
	"sync"
	"testing"
	"time"

	"drawboard/internal/models"
)

type segmentCollector struct {
	mu   sync.Mutex
	segs []*models.PathSegment
}

func (c *segmentCollector) emit(seg *models.PathSegment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segs = append(c.segs, seg)
}

func (c *segmentCollector) snapshot() []*models.PathSegment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.PathSegment, len(c.segs))
	copy(out, c.segs)
	return out
}

func seg(id string) *models.PathSegment {
	return &models.PathSegment{
		OpID:   id,
		Type:   models.TypePathSegment,
		Points: []models.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
	}
}

func TestSegmentRelay_ThrottleDropsRapidOffers(t *testing.T) {
	var c segmentCollector
	r := NewSegmentRelay(50*time.Millisecond, 20*time.Millisecond, c.emit)

	if !r.Offer(seg("a")) {
		t.Fatal("first Offer() = false, want queued")
	}
	// Inside the throttle interval: dropped, not buffered.
	if r.Offer(seg("b")) {
		t.Error("Offer() inside throttle interval = true, want dropped")
	}

	time.Sleep(60 * time.Millisecond)
	got := c.snapshot()
	if len(got) != 1 {
		t.Fatalf("emitted %d segments, want 1", len(got))
	}
	if got[0].OpID != "a" {
		t.Errorf("emitted segment %s, want a", got[0].OpID)
	}
}

func TestSegmentRelay_CoalescesToMostRecent(t *testing.T) {
	var c segmentCollector
	// Generous batch window so two throttle intervals fit inside it.
	r := NewSegmentRelay(10*time.Millisecond, 60*time.Millisecond, c.emit)

	if !r.Offer(seg("first")) {
		t.Fatal("first Offer() not queued")
	}
	time.Sleep(20 * time.Millisecond)
	if !r.Offer(seg("latest")) {
		t.Fatal("second Offer() not queued")
	}

	time.Sleep(80 * time.Millisecond)
	got := c.snapshot()
	if len(got) != 1 {
		t.Fatalf("emitted %d segments, want 1 (earlier segment discarded)", len(got))
	}
	if got[0].OpID != "latest" {
		t.Errorf("emitted segment %s, want latest", got[0].OpID)
	}
}

func TestSegmentRelay_CancelSuppressesTrailingFlush(t *testing.T) {
	var c segmentCollector
	r := NewSegmentRelay(10*time.Millisecond, 40*time.Millisecond, c.emit)

	r.Offer(seg("doomed"))
	r.Cancel()

	time.Sleep(80 * time.Millisecond)
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("emitted %d segments after Cancel(), want 0", len(got))
	}
}

func TestSegmentRelay_ReusableAfterCancel(t *testing.T) {
	var c segmentCollector
	r := NewSegmentRelay(10*time.Millisecond, 20*time.Millisecond, c.emit)

	r.Offer(seg("old"))
	r.Cancel()

	if !r.Offer(seg("new")) {
		t.Fatal("Offer() after Cancel() not queued")
	}
	time.Sleep(60 * time.Millisecond)

	got := c.snapshot()
	if len(got) != 1 || got[0].OpID != "new" {
		t.Fatalf("segments after restart = %v, want just new", got)
	}
}
