package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	msg, err := NewEvent("state", map[string]any{"state": "listening"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	var got struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != "state" || got.Data["state"] != "listening" {
		t.Errorf("event = %+v", got)
	}

	if _, err := NewEvent("bad", make(chan int)); err == nil {
		t.Error("expected encode error")
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("test", nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Broadcast(NewJSONMessage([]byte(`{}`)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked without a running hub")
	}
}

func TestRunFansOutAndStops(t *testing.T) {
	h := New("test", nil)
	if h.Name() != "test" {
		t.Errorf("Name = %q", h.Name())
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	waitRunning(t, h)

	first, _ := NewEvent("state", "idle")
	c := NewClient(h, nil, first)
	if !h.join(c) {
		t.Fatal("join failed on running hub")
	}
	if n := h.ClientCount(); n != 1 {
		t.Errorf("ClientCount = %d, want 1", n)
	}

	if err := h.BroadcastEvent("turn", "hello"); err != nil {
		t.Fatalf("BroadcastEvent: %v", err)
	}

	want := []string{`{"type":"state","data":"idle"}`, `{"type":"turn","data":"hello"}`}
	for i, w := range want {
		select {
		case msg := <-c.send:
			if string(msg.Data) != w {
				t.Errorf("message %d = %s, want %s", i, msg.Data, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("message %d not delivered", i)
		}
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	if h.IsRunning() {
		t.Error("IsRunning = true after stop")
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d after stop", n)
	}
	if _, ok := <-c.send; ok {
		t.Error("client send channel should be closed")
	}

	// A stopped hub refuses new clients without blocking.
	if h.join(NewClient(h, nil)) {
		t.Error("join succeeded on stopped hub")
	}
	h.leave(c)
}

func waitRunning(t *testing.T, h *Hub) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("hub did not start")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSlowClientDropped(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	waitRunning(t, h)

	slow := NewClient(h, nil)
	h.join(slow)
	for i := 0; i < queueSize+1; i++ {
		h.deliver(NewJSONMessage([]byte(`{}`)))
	}

	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
	drained := 0
	for range slow.send {
		drained++
	}
	if drained != queueSize {
		t.Errorf("drained %d, want %d", drained, queueSize)
	}
	h.leave(slow)
}

func TestUnregister(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := NewClient(h, nil)
	h.join(c)
	h.leave(c)

	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed after leave")
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
}
