package roster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"escalabot/internal/storage"
	kit "escalabot/internal/transport"
	logx "escalabot/pkg/logx"
)

type sentText struct {
	chatID int64
	text   string
	mode   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentText
	// fail maps a chat ID to the error SendText returns for it.
	fail map[int64]error
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	mode := ""
	if opt != nil {
		mode = opt.ParseMode
	}
	f.sent = append(f.sent, sentText{chatID: to.ChatID, text: text, mode: mode})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// newTestService builds a Service over the file store in a temp dir, with
// "today" pinned to the given DD/MM/YYYY date.
func newTestService(t *testing.T, today string) (*Service, *fakeSender) {
	t.Helper()

	store, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	fs := &fakeSender{fail: map[int64]error{}}
	svc := New(Config{RatePerSec: 1000}, store, fs, logx.Nop())

	d, err := ParseDate(today)
	if err != nil {
		t.Fatalf("bad pinned date %q: %v", today, err)
	}
	svc.now = func() time.Time { return d }
	return svc, fs
}

func mustIngest(t *testing.T, svc *Service, lines ...string) {
	t.Helper()
	rep, err := svc.Ingest(context.Background(), lines)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(rep.Rejected) != 0 {
		t.Fatalf("ingest rejected lines: %q", rep.Rejected)
	}
}

func TestIngestPartialBatch(t *testing.T) {
	svc, _ := newTestService(t, "01/03/2026")
	ctx := context.Background()

	rep, err := svc.Ingest(ctx, []string{
		"@ana, 01/03/2026, Domingo, Culto da Manhã",
		"isto não é uma linha de escala",
		"@bruno, 01/03/2026, Domingo, Culto da Noite",
		"@carla, 45/13/2026, ?, Evento",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if rep.Accepted != 2 {
		t.Fatalf("accepted = %d, want 2", rep.Accepted)
	}
	if len(rep.Rejected) != 2 {
		t.Fatalf("rejected = %q, want 2 lines", rep.Rejected)
	}
	if rep.Rejected[0] != "isto não é uma linha de escala" || rep.Rejected[1] != "@carla, 45/13/2026, ?, Evento" {
		t.Fatalf("rejected lines not verbatim: %q", rep.Rejected)
	}

	groups, err := svc.MonthView(ctx, mustDate(t, "01/03/2026"))
	if err != nil {
		t.Fatalf("month view: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Entries) != 2 {
		t.Fatalf("want the 2 accepted entries persisted, got %+v", groups)
	}
}

func TestIngestResubmissionResetsFlags(t *testing.T) {
	svc, fs := newTestService(t, "01/03/2026")
	ctx := context.Background()

	if err := svc.Register(ctx, "ana", 101); err != nil {
		t.Fatalf("register: %v", err)
	}
	mustIngest(t, svc, "@ana, 01/03/2026, Domingo, Culto")

	if err := svc.RunDispatchPass(ctx, PassMorning); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("sends after first pass = %d, want 1", fs.count())
	}

	// Same date+user again: the entry is replaced and its flags reset, so
	// the next morning pass delivers again.
	mustIngest(t, svc, "@ana, 01/03/2026, Domingo, Culto (atualizado)")
	if err := svc.RunDispatchPass(ctx, PassMorning); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if fs.count() != 2 {
		t.Fatalf("sends after resubmission = %d, want 2", fs.count())
	}
}

func TestDeleteByDate(t *testing.T) {
	svc, _ := newTestService(t, "01/03/2026")
	ctx := context.Background()

	mustIngest(t, svc,
		"@ana, 05/03/2026, Quinta, Ensaio",
		"@bruno, 05/03/2026, Quinta, Ensaio",
		"@carla, 06/03/2026, Sexta, Vigília",
	)

	if _, err := svc.DeleteByDate(ctx, "quinta-feira"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("malformed date: err = %v, want ErrInvalidDate", err)
	}

	n, err := svc.DeleteByDate(ctx, "10/03/2026")
	if err != nil || n != 0 {
		t.Fatalf("empty date: (%d, %v), want (0, nil)", n, err)
	}

	n, err = svc.DeleteByDate(ctx, "5/3/2026")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}

	groups, err := svc.MonthView(ctx, mustDate(t, "01/03/2026"))
	if err != nil {
		t.Fatalf("month view: %v", err)
	}
	if len(groups) != 1 || groups[0].Entries[0].User != "carla" {
		t.Fatalf("remaining roster wrong: %+v", groups)
	}
}

func TestMonthViewGroupingAndOrder(t *testing.T) {
	svc, _ := newTestService(t, "10/03/2026")
	ctx := context.Background()

	mustIngest(t, svc,
		"@zeca, 15/03/2026, Domingo, Culto",
		"@ana, 15/03/2026, Domingo, Culto",
		"@bruno, 12/03/2026, Quinta, Ensaio",
		"@carla, 05/03/2026, Quinta, Passado",
		"@dani, 02/04/2026, Quinta, Outro mês",
	)

	groups, err := svc.MonthView(ctx, mustDate(t, "10/03/2026"))
	if err != nil {
		t.Fatalf("month view: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2 (past and next-month entries excluded): %+v", len(groups), groups)
	}
	if got := groups[0].Date.Format(DateLayout); got != "12/03/2026" {
		t.Fatalf("first group = %s, want 12/03/2026", got)
	}
	if got := groups[1].Date.Format(DateLayout); got != "15/03/2026" {
		t.Fatalf("second group = %s, want 15/03/2026", got)
	}
	day := groups[1]
	if len(day.Entries) != 2 || day.Entries[0].User != "ana" || day.Entries[1].User != "zeca" {
		t.Fatalf("same-day entries not ordered by user: %+v", day.Entries)
	}
}

func TestMonthViewIncludesToday(t *testing.T) {
	svc, _ := newTestService(t, "10/03/2026")
	ctx := context.Background()

	mustIngest(t, svc, "@ana, 10/03/2026, Terça, Hoje")

	groups, err := svc.MonthView(ctx, mustDate(t, "10/03/2026"))
	if err != nil {
		t.Fatalf("month view: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("today's entry must be listed, got %+v", groups)
	}
}

func TestRegisterNormalizesHandle(t *testing.T) {
	svc, fs := newTestService(t, "01/03/2026")
	ctx := context.Background()

	if err := svc.Register(ctx, "  AnA ", 42); err != nil {
		t.Fatalf("register: %v", err)
	}
	mustIngest(t, svc, "@ANA, 01/03/2026, Domingo, Culto")

	if err := svc.RunDispatchPass(ctx, PassMorning); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if fs.count() != 1 || fs.sent[0].chatID != 42 {
		t.Fatalf("normalized handle did not resolve: %+v", fs.sent)
	}

	if err := svc.Register(ctx, " ", 7); !errors.Is(err, ErrBadLine) {
		t.Fatalf("blank handle: err = %v, want ErrBadLine", err)
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
