package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/yoockh/veriview/internal/models"
)

func TestHub_DeliversToSessionSubscribers(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	ch, cancel, err := h.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	other, cancelOther, _ := h.Subscribe(ctx, "s2")
	defer cancelOther()

	if err := h.Publish(ctx, New(TypeTurnScored, models.KindDebate, "s1", "opening", map[string]float64{"logic": 4})); err != nil {
		t.Fatal(err)
	}

	select {
	case b := <-ch:
		var e Event
		if err := json.Unmarshal(b, &e); err != nil {
			t.Fatal(err)
		}
		if e.Type != TypeTurnScored || e.Phase != "opening" || e.SessionID != "s1" {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}

	select {
	case b := <-other:
		t.Errorf("other session received %s", b)
	default:
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	h := NewHub()
	ctx, stop := context.WithCancel(context.Background())
	ch, _, _ := h.Subscribe(ctx, "s1")
	if h.Subscribers("s1") != 1 {
		t.Fatalf("expected one subscriber")
	}
	stop()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
	if n := h.Subscribers("s1"); n != 0 {
		t.Errorf("expected no subscribers, got %d", n)
	}
	// publishing after cancel must not panic
	_ = h.Publish(context.Background(), New(TypeSessionClosed, models.KindDebate, "s1", "", nil))
}

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }

func TestFanout_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	h := NewHub()
	f := Fanout{h, failing{boom}, nil, Nop{}}
	err := f.Publish(context.Background(), New(TypeRenderReady, models.KindInterview, "s1", "INTRO", nil))
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error, got %v", err)
	}
	if err := (Fanout{h, Nop{}}).Publish(context.Background(), New(TypeRenderReady, models.KindInterview, "s1", "", nil)); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestSubjectAndChannel(t *testing.T) {
	e := New(TypeTurnDegraded, models.KindInterview, "abc", "TECH", nil)
	if got := Subject(e); got != "veriview.interview.turn.degraded" {
		t.Errorf("unexpected subject %s", got)
	}
	if got := StatusChannel("abc"); got != "session:abc:status" {
		t.Errorf("unexpected channel %s", got)
	}
}
