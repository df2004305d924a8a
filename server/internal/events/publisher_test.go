package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/retry"
)

type fakeWriter struct {
	mu       sync.Mutex
	fail     []error // returned in order before succeeding
	msgs     []kafka.Message
	attempts int
	written  chan struct{}
}

func newFakeWriter(fail ...error) *fakeWriter {
	return &fakeWriter{fail: fail, written: make(chan struct{}, 16)}
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if len(f.fail) > 0 {
		err := f.fail[0]
		f.fail = f.fail[1:]
		f.written <- struct{}{}
		return err
	}
	f.msgs = append(f.msgs, msgs...)
	f.written <- struct{}{}
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func (f *fakeWriter) snapshot() ([]kafka.Message, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.msgs...), f.attempts
}

func briefing(id, hospital string) *types.Briefing {
	return &types.Briefing{ID: id, HospitalID: hospital, Date: "2026-03-07", RiskLevel: types.RiskHigh}
}

func newTestPublisher(w messageWriter, size int) *Publisher {
	p := newPublisher(w, size, nil)
	p.now = func() time.Time { return time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC) }
	p.backoff = func() *retry.Backoff { return retry.New(time.Millisecond, 2*time.Millisecond) }
	return p
}

func waitWrites(t *testing.T, f *fakeWriter, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.written:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for write %d of %d", i+1, n)
		}
	}
}

func TestShip_EvictsOldestWhenFull(t *testing.T) {
	p := newTestPublisher(newFakeWriter(), 2)

	p.Ship(briefing("b1", "h1"))
	p.Ship(briefing("b2", "h1"))
	p.Ship(briefing("b3", "h1"))

	if got := p.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}
	if first := <-p.buf; first.ID != "b2" {
		t.Errorf("oldest kept = %s, want b2", first.ID)
	}
	if second := <-p.buf; second.ID != "b3" {
		t.Errorf("newest kept = %s, want b3", second.ID)
	}
}

func TestRun_PublishesKeyedEvents(t *testing.T) {
	w := newFakeWriter()
	p := newTestPublisher(w, 8)
	p.Ship(briefing("b1", "h1"))
	p.Ship(briefing("b2", "h2"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	waitWrites(t, w, 2)

	msgs, _ := w.snapshot()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if string(msgs[0].Key) != "h1" || string(msgs[1].Key) != "h2" {
		t.Errorf("keys = %q, %q, want h1, h2", msgs[0].Key, msgs[1].Key)
	}

	var ev Event
	if err := json.Unmarshal(msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != TypeBriefingPublished || ev.Briefing == nil || ev.Briefing.ID != "b1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestRun_RetriesTransientErrors(t *testing.T) {
	w := newFakeWriter(errors.New("broker down"), kafka.LeaderNotAvailable)
	p := newTestPublisher(w, 8)
	p.Ship(briefing("b1", "h1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	waitWrites(t, w, 3)

	msgs, attempts := w.snapshot()
	if attempts != 3 || len(msgs) != 1 {
		t.Errorf("attempts = %d, messages = %d, want 3 and 1", attempts, len(msgs))
	}
}

func TestRun_DiscardsOnPermanentError(t *testing.T) {
	w := newFakeWriter(kafka.MessageSizeTooLarge)
	p := newTestPublisher(w, 8)
	p.Ship(briefing("b1", "h1"))
	p.Ship(briefing("b2", "h1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	waitWrites(t, w, 2)

	msgs, attempts := w.snapshot()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (no retry of rejected message)", attempts)
	}
	if len(msgs) != 1 || string(msgs[0].Key) != "h1" {
		t.Fatalf("messages = %+v, want only b2", msgs)
	}
	var ev Event
	_ = json.Unmarshal(msgs[0].Value, &ev)
	if ev.Briefing.ID != "b2" {
		t.Errorf("published = %s, want b2", ev.Briefing.ID)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	p := newTestPublisher(newFakeWriter(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
