package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mescon/motion/internal/domain"
)

func TestMockClock_SetNowAndAdvance(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMockClockAt(base)

	fired := 0
	mc.AfterFunc(time.Second, func() { fired++ })

	mc.SetNow(base.Add(5 * time.Second))
	if fired != 0 {
		t.Fatal("SetNow must not run pending functions")
	}
	if n := mc.Advance(0); n != 1 || fired != 1 {
		t.Errorf("Advance(0) ran %d functions, fired = %d", n, fired)
	}
	if got := mc.Now(); !got.Equal(base.Add(5 * time.Second)) {
		t.Errorf("Now() = %v", got)
	}
}

func TestMockClock_FireAllAndReset(t *testing.T) {
	mc := NewMockClock()
	mc.AfterFunc(time.Hour, func() {})
	stopped := mc.AfterFunc(time.Hour, func() { t.Error("stopped timer fired") })
	mc.AfterFunc(2*time.Hour, func() {})

	if !stopped.Stop() {
		t.Error("Stop() on a pending timer should report true")
	}
	if n := mc.FireAll(); n != 2 {
		t.Errorf("FireAll() = %d, want 2", n)
	}
	if mc.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after FireAll", mc.PendingCount())
	}

	mc.AfterFunc(time.Minute, func() {})
	mc.Reset()
	if mc.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after Reset", mc.PendingCount())
	}
}

func TestMockClock_Delay(t *testing.T) {
	mc := NewMockClock()

	done := make(chan error, 1)
	go func() { done <- mc.Delay(context.Background(), 10*time.Millisecond) }()
	if !mc.BlockUntil(1) {
		t.Fatal("Delay never registered a timer")
	}
	mc.Advance(10 * time.Millisecond)
	if err := <-done; err != nil {
		t.Errorf("Delay() = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- mc.Delay(ctx, time.Hour) }()
	if !mc.BlockUntil(1) {
		t.Fatal("Delay never registered a timer")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Delay() = %v, want context.Canceled", err)
	}
	if mc.PendingCount() != 0 {
		t.Error("a cancelled Delay should stop its timer")
	}
}

func TestMockEventBus(t *testing.T) {
	eb := NewMockEventBus()
	var seen []domain.EventType
	eb.Subscribe(domain.MotionCompleted, func(e domain.Event) { seen = append(seen, e.EventType) })

	for _, e := range RunFlow(0, 1) {
		if err := eb.Publish(e); err != nil {
			t.Fatalf("Publish() = %v", err)
		}
	}
	if len(seen) != 1 {
		t.Errorf("subscriber saw %d events, want 1", len(seen))
	}
	if eb.EventCount(domain.MotionStarted) != 1 || len(eb.GetAllEvents()) != 2 {
		t.Errorf("unexpected events: %+v", eb.GetAllEvents())
	}
	if last := eb.LastEvent(); last == nil || last.EventType != domain.MotionCompleted {
		t.Errorf("LastEvent() = %+v", last)
	}

	eb.PublishErr = errors.New("journal down")
	if err := eb.Publish(NewStartedEvent(0, 1)); err == nil {
		t.Error("Publish should return PublishErr")
	}

	eb.Reset()
	if eb.LastEvent() != nil || len(eb.Subscribers) != 0 {
		t.Error("Reset should clear events and subscribers")
	}
}

func TestFixtures(t *testing.T) {
	flow := RunFlow(2, 8)
	if len(flow) != 2 || flow[0].AggregateID != flow[1].AggregateID {
		t.Fatalf("RunFlow should share one aggregate: %+v", flow)
	}
	if v, _ := flow[1].GetFloat64("value"); v != 8 {
		t.Errorf("completed value = %v, want 8", v)
	}

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e := NewStartedEvent(0, 1,
		WithAggregateID("abc"),
		WithCreatedAt(at),
		WithEventData(map[string]interface{}{"run": int64(3), "note": "x"}),
	)
	if e.AggregateID != "abc" || !e.CreatedAt.Equal(at) {
		t.Errorf("options not applied: %+v", e)
	}
	if run, _ := e.GetInt64("run"); run != 3 {
		t.Errorf("run = %d, want 3", run)
	}
	if e.GetStringOr("note", "") != "x" {
		t.Errorf("note = %q", e.GetStringOr("note", ""))
	}
}
