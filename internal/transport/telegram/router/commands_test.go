package router

import (
	"context"
	"sync"
	"testing"
	"time"

	kit "escalabot/internal/transport"
	logx "escalabot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{}, nil
}

type routed struct {
	mu   sync.Mutex
	cmds []string
	args [][]string
}

func (r *routed) handler() HandlerFunc {
	return func(_ context.Context, req *Request) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cmds = append(r.cmds, req.Command)
		r.args = append(r.args, req.Args)
		return nil
	}
}

func (r *routed) wait(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		got := len(r.cmds)
		r.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d routed commands", n)
}

func newTestManager(t *testing.T) (*Manager, *fakeAdapter, *routed, chan kit.Update) {
	t.Helper()

	ad := &fakeAdapter{}
	rt := &routed{}
	m := NewManager(logx.Nop(), ad)
	m.SetRegistry([]Command{
		{Name: "escala", Handle: rt.handler()},
		{Name: "apagarescala", Handle: rt.handler()},
	})

	updates := make(chan kit.Update, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("dispatch loop did not stop")
		}
	})
	return m, ad, rt, updates
}

func msgUpdate(text string) kit.Update {
	return kit.Update{Message: &kit.Message{ID: 1, ChatID: 10, ThreadID: 3, FromID: 20, Text: text, IsGroup: true}}
}

func TestRouteCommand(t *testing.T) {
	_, _, rt, updates := newTestManager(t)

	updates <- msgUpdate("/apagarescala 28/09/2025")
	rt.wait(t, 1)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.cmds[0] != "apagarescala" {
		t.Fatalf("routed %q, want apagarescala", rt.cmds[0])
	}
	if len(rt.args[0]) != 1 || rt.args[0][0] != "28/09/2025" {
		t.Fatalf("args = %q, want [28/09/2025]", rt.args[0])
	}
}

func TestRouteStripsBotMention(t *testing.T) {
	_, _, rt, updates := newTestManager(t)

	updates <- msgUpdate("/escala@meu_bot @ana, 01/03/2026, Domingo, Culto")
	rt.wait(t, 1)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.cmds[0] != "escala" {
		t.Fatalf("routed %q, want escala", rt.cmds[0])
	}
}

func TestUnknownCommandIgnoredSilently(t *testing.T) {
	_, ad, rt, updates := newTestManager(t)

	updates <- msgUpdate("/outro_bot_cmd")
	updates <- msgUpdate("conversa normal sem comando")
	updates <- msgUpdate("/escala linha")
	rt.wait(t, 1)

	rt.mu.Lock()
	n := len(rt.cmds)
	rt.mu.Unlock()
	if n != 1 {
		t.Fatalf("routed %d commands, want only the known one", n)
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.sent) != 0 {
		t.Fatalf("unknown command got a reply: %q", ad.sent)
	}
}

func TestPanicInHandlerIsContained(t *testing.T) {
	ad := &fakeAdapter{}
	m := NewManager(logx.Nop(), ad)

	rt := &routed{}
	m.SetRegistry([]Command{
		{Name: "boom", Handle: func(context.Context, *Request) error { panic("handler bug") }},
		{Name: "ok", Handle: rt.handler()},
	})

	updates := make(chan kit.Update, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.DispatchLoop(ctx, updates) }()

	updates <- msgUpdate("/boom")
	updates <- msgUpdate("/ok")
	rt.wait(t, 1)
}
