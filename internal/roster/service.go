package roster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"escalabot/internal/storage"
	kit "escalabot/internal/transport"
	logx "escalabot/pkg/logx"
)

// Store record names. They match the JSON files of the first deployment of
// this bot, so an existing data directory keeps working.
const (
	recordRoster = "escala"
	recordUsers  = "usuarios"
	recordTopic  = "config"
)

// Sender delivers a text message to a chat. Satisfied by the transport
// adapter.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Config struct {
	// RatePerSec caps reminder sends per second during a dispatch pass.
	RatePerSec int
}

// Service implements roster administration and the reminder dispatch pass
// over a whole-document store.
//
// mu serializes every load-mutate-save sequence; two concurrent mutators
// would otherwise silently lose one side's write.
type Service struct {
	store  storage.Store
	sender Sender
	log    logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter

	// now is replaced in tests to pin "today".
	now func() time.Time
}

func New(cfg Config, store storage.Store, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	return &Service{
		store:   store,
		sender:  sender,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		now:     time.Now,
	}
}

func (s *Service) loadRoster(ctx context.Context) (Roster, error) {
	r := Roster{}
	if _, err := s.store.Load(ctx, recordRoster, &r); err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if r == nil {
		r = Roster{}
	}
	return r, nil
}

func (s *Service) loadDirectory(ctx context.Context) (Directory, error) {
	d := Directory{}
	if _, err := s.store.Load(ctx, recordUsers, &d); err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}
	if d == nil {
		d = Directory{}
	}
	return d, nil
}

// IngestReport summarizes one bulk roster submission.
type IngestReport struct {
	Accepted int
	// Rejected holds the offending raw lines verbatim so the caller can
	// correct and resubmit them.
	Rejected []string
}

// Ingest parses the given non-empty lines, upserting every valid entry
// (delivery flags reset, so a resubmission for the same date+user starts the
// day fresh) and collecting invalid lines. The roster is saved once after
// the whole batch.
func (s *Service) Ingest(ctx context.Context, lines []string) (IngestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster, err := s.loadRoster(ctx)
	if err != nil {
		return IngestReport{}, err
	}

	var rep IngestReport
	for _, line := range lines {
		e, err := ParseLine(line)
		if err != nil {
			s.log.Warn("roster line rejected", logx.String("line", line), logx.Err(err))
			rep.Rejected = append(rep.Rejected, line)
			continue
		}
		roster[e.Key()] = e
		rep.Accepted++
	}

	if err := s.store.Save(ctx, recordRoster, roster); err != nil {
		return IngestReport{}, fmt.Errorf("save roster: %w", err)
	}
	s.log.Info("roster ingested", logx.Int("accepted", rep.Accepted), logx.Int("rejected", len(rep.Rejected)))
	return rep, nil
}

// DeleteByDate removes every entry scheduled on the given date and reports
// how many were removed. Zero is a valid outcome and does not touch the
// store. A malformed date returns ErrInvalidDate.
func (s *Service) DeleteByDate(ctx context.Context, date string) (int, error) {
	d, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	key := d.Format(DateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	roster, err := s.loadRoster(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for k, e := range roster {
		if e.Date == key {
			delete(roster, k)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	if err := s.store.Save(ctx, recordRoster, roster); err != nil {
		return 0, fmt.Errorf("save roster: %w", err)
	}
	s.log.Info("roster entries removed", logx.String("date", key), logx.Int("count", removed))
	return removed, nil
}

// DayGroup is the month view of a single date: all assignments for that day.
type DayGroup struct {
	Date    time.Time
	Entries []Entry
}

// MonthView returns the entries of ref's month that are on-or-after ref
// (day granularity), chronologically ascending and grouped by date. Entries
// whose stored date does not parse are skipped.
//
// This is a read-only path: it runs without the service mutex because both
// store drivers serve consistent whole-record loads against concurrent saves.
func (s *Service) MonthView(ctx context.Context, ref time.Time) ([]DayGroup, error) {
	roster, err := s.loadRoster(ctx)
	if err != nil {
		return nil, err
	}
	today := DateOnly(ref)

	type dated struct {
		d time.Time
		e Entry
	}
	sel := make([]dated, 0, len(roster))
	for _, e := range roster {
		// Parsed in ref's zone so "on or after today" holds west of UTC.
		d, err := ParseDateIn(e.Date, ref.Location())
		if err != nil {
			continue
		}
		if d.Month() == ref.Month() && d.Year() == ref.Year() && !d.Before(today) {
			sel = append(sel, dated{d: d, e: e})
		}
	}

	sort.SliceStable(sel, func(i, j int) bool {
		if !sel[i].d.Equal(sel[j].d) {
			return sel[i].d.Before(sel[j].d)
		}
		return sel[i].e.User < sel[j].e.User
	})

	var groups []DayGroup
	for _, it := range sel {
		n := len(groups)
		if n == 0 || !groups[n-1].Date.Equal(it.d) {
			groups = append(groups, DayGroup{Date: it.d})
			n++
		}
		groups[n-1].Entries = append(groups[n-1].Entries, it.e)
	}
	return groups, nil
}

// Register upserts the recipient directory entry for the given handle so the
// dispatcher can deliver reminders to that person.
func (s *Service) Register(ctx context.Context, handle string, chatID int64) error {
	user := strings.ToLower(strings.TrimSpace(handle))
	if user == "" {
		return fmt.Errorf("%w: nome de usuário vazio", ErrBadLine)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.loadDirectory(ctx)
	if err != nil {
		return err
	}
	dir[user] = chatID
	if err := s.store.Save(ctx, recordUsers, dir); err != nil {
		return fmt.Errorf("save directory: %w", err)
	}
	s.log.Info("recipient registered", logx.String("user", user), logx.Int64("chat_id", chatID))
	return nil
}
