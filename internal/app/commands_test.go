package app

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"escalabot/internal/roster"
	"escalabot/internal/storage"
	kit "escalabot/internal/transport"
	"escalabot/internal/transport/telegram/router"
	logx "escalabot/pkg/logx"
)

type recordingAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (r *recordingAdapter) Stop(context.Context) error { return nil }

func (r *recordingAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return kit.MessageRef{}, nil
}

func newTestApp(t *testing.T) (*App, *recordingAdapter, storage.Store) {
	t.Helper()

	store, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ad := &recordingAdapter{}
	svc := roster.New(roster.Config{}, store, ad, logx.Nop())
	return &App{rost: svc, log: logx.Nop()}, ad, store
}

func startRequest(ad *recordingAdapter, msg *kit.Message) *router.Request {
	return &router.Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		Command: "start",
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func TestStartRegistersTheUserNotTheChat(t *testing.T) {
	a, ad, store := newTestApp(t)

	// /start issued inside the group: the carrying chat is the group's ID,
	// the reminder target must still be the user's own ID.
	err := a.cmdStart(context.Background(), startRequest(ad, &kit.Message{
		ChatID:       -100900,
		FromID:       42,
		FromUsername: "Ana",
		FromFirst:    "Ana",
		IsGroup:      true,
	}))
	if err != nil {
		t.Fatalf("cmdStart: %v", err)
	}

	var dir map[string]int64
	found, err := store.Load(context.Background(), "usuarios", &dir)
	if err != nil || !found {
		t.Fatalf("load directory: found=%v err=%v", found, err)
	}
	if got := dir["ana"]; got != 42 {
		t.Fatalf("registered id = %d, want the user's own id 42", got)
	}
	if len(ad.sent) != 1 || !strings.Contains(ad.sent[0], "Ana") {
		t.Fatalf("greeting not sent: %q", ad.sent)
	}
}

func TestStartWithoutUsernameAsksForOne(t *testing.T) {
	a, ad, store := newTestApp(t)

	err := a.cmdStart(context.Background(), startRequest(ad, &kit.Message{
		ChatID: 42,
		FromID: 42,
	}))
	if err != nil {
		t.Fatalf("cmdStart: %v", err)
	}
	if len(ad.sent) != 1 || ad.sent[0] != replyNeedUsername {
		t.Fatalf("expected the set-a-username reply, got %q", ad.sent)
	}
	var dir map[string]int64
	if found, _ := store.Load(context.Background(), "usuarios", &dir); found {
		t.Fatalf("directory written without a username: %v", dir)
	}
}

func TestIngestLines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "command alone on first line",
			text: "/escala\n@ana, 01/03/2026, Domingo, Culto\n@bruno, 02/03/2026, Segunda, Ensaio",
			want: []string{"@ana, 01/03/2026, Domingo, Culto", "@bruno, 02/03/2026, Segunda, Ensaio"},
		},
		{
			name: "entry on the command line",
			text: "/escala @ana, 01/03/2026, Domingo, Culto",
			want: []string{"@ana, 01/03/2026, Domingo, Culto"},
		},
		{
			name: "bot mention stripped with the command",
			text: "/escala@escalabot\n@ana, 01/03/2026, Domingo, Culto",
			want: []string{"@ana, 01/03/2026, Domingo, Culto"},
		},
		{
			name: "blank lines dropped",
			text: "/escala\n\n  \n@ana, 01/03/2026, Domingo, Culto\n\n",
			want: []string{"@ana, 01/03/2026, Domingo, Culto"},
		},
		{
			name: "bare command yields nothing",
			text: "/escala",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ingestLines(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ingestLines(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestRenderMonth(t *testing.T) {
	ref := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	groups := []roster.DayGroup{
		{
			Date: time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
			Entries: []roster.Entry{
				{User: "ana", Date: "15/03/2026", Event: "Culto da Manhã"},
				{User: "zeca", Date: "15/03/2026", Event: "Culto da Noite"},
			},
		},
		{
			Date: time.Date(2026, time.March, 17, 0, 0, 0, 0, time.UTC),
			Entries: []roster.Entry{
				{User: "bruno", Date: "17/03/2026", Event: "Ensaio"},
			},
		},
	}

	out := renderMonth(groups, ref)

	if !strings.HasPrefix(out, "📅 *Escala para o restante de Março*") {
		t.Fatalf("missing month header: %q", out)
	}
	for _, want := range []string{
		"*15/03/2026 (Domingo)*",
		"*17/03/2026 (Terça-feira)*",
		"`@ana`: Culto da Manhã",
		"`@zeca`: Culto da Noite",
		"`@bruno`: Ensaio",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered view missing %q:\n%s", want, out)
		}
	}
	if i, j := strings.Index(out, "15/03/2026"), strings.Index(out, "17/03/2026"); i > j {
		t.Fatalf("dates out of order:\n%s", out)
	}
	if strings.HasSuffix(out, "\n") {
		t.Fatalf("trailing newline left in message: %q", out)
	}
}
