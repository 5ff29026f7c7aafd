package bus

import (
	"testing"
)

func TestPublishOrder(t *testing.T) {
	b := New(0)
	var got []string
	b.SubscribeAll(func(msg Message) { got = append(got, "all:"+string(msg.Type)) })
	b.Subscribe(MsgToolCalled, func(msg Message) { got = append(got, "tool:"+msg.Tool) })

	b.Publish(Message{Type: MsgToolCalled, Tool: "getTicketPrice"})
	b.Publish(Message{Type: MsgTurnCompleted})

	want := []string{"tool:getTicketPrice", "all:tool.called", "all:turn.completed"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestPublishStampsTime(t *testing.T) {
	b := New(10)
	b.Publish(Message{Type: MsgTurnStarted})
	h := b.History(1)
	if len(h) != 1 || h[0].Time.IsZero() {
		t.Errorf("expected stamped event, got %+v", h)
	}
}

func TestHistoryBounded(t *testing.T) {
	b := New(3)
	for i := 1; i <= 5; i++ {
		b.Publish(Message{Type: MsgModelRequested, Round: i})
	}
	h := b.History(0)
	if len(h) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(h))
	}
	if h[0].Round != 3 || h[2].Round != 5 {
		t.Errorf("expected newest events kept, got rounds %d..%d", h[0].Round, h[2].Round)
	}
	if last := b.History(1); len(last) != 1 || last[0].Round != 5 {
		t.Errorf("History(1) = %+v", last)
	}
}

func TestHandlerMayPublish(t *testing.T) {
	b := New(0)
	fired := false
	b.Subscribe(MsgTurnFailed, func(Message) {
		b.Publish(Message{Type: MsgStateChanged, Payload: "failed"})
	})
	b.Subscribe(MsgStateChanged, func(Message) { fired = true })

	b.Publish(Message{Type: MsgTurnFailed})
	if !fired {
		t.Error("nested publish should be delivered")
	}
}
