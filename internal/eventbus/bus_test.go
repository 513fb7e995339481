package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	logx "paypacer/pkg/logx"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypePacingTick})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypePacingTick || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatalf("event not delivered")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	if e := <-ch; e.Type != "a" {
		t.Fatalf("got %q, want a", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %q", e.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	b.Publish(Event{Type: "after"})
}

type fakePublisher struct {
	mu   sync.Mutex
	subj []string
	data [][]byte
	err  error
	got  chan struct{}
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	p.subj = append(p.subj, subject)
	p.data = append(p.data, data)
	p.mu.Unlock()
	select {
	case p.got <- struct{}{}:
	default:
	}
	return p.err
}

func TestBridgeForwardsEventsAsJSON(t *testing.T) {
	bus := New()
	pub := &fakePublisher{got: make(chan struct{}, 4)}
	br := NewBridge(pub, " ops.paypacer. ", 4, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- br.Run(ctx, bus) }()

	// Wait for the bridge subscription to be registered.
	deadline := time.Now().Add(time.Second)
	for {
		bus.Publish(Event{Type: TypePacingDispatched, Data: map[string]int{"dispatched": 14}})
		select {
		case <-pub.got:
		case <-time.After(10 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatalf("bridge did not forward")
			}
			continue
		}
		break
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.subj[0] != "ops.paypacer.pacing.dispatched" {
		t.Fatalf("subject = %q", pub.subj[0])
	}
	var e struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(pub.data[0], &e); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if e.Type != TypePacingDispatched || e.Data["dispatched"] != 14 {
		t.Fatalf("payload = %+v", e)
	}
}

func TestBridgeDefaultPrefix(t *testing.T) {
	br := NewBridge(&fakePublisher{}, "", 0, logx.Nop())
	if got := br.Subject(TypeTaskFailed); got != "paypacer.task.failed" {
		t.Fatalf("Subject = %q", got)
	}
}
