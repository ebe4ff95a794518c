// Package trigger runs the daily reminder schedule: two cron entries
// (morning and afternoon) that each invoke one dispatch pass. Missed ticks
// are not replayed; cron simply fires at the next configured occurrence.
package trigger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"escalabot/internal/roster"
	logx "escalabot/pkg/logx"
)

type Config struct {
	Enabled   bool
	Morning   string // "HH:MM", default 09:00
	Afternoon string // "HH:MM", default 16:00
	Timezone  string // IANA name; empty = process local zone

	// PassTimeout bounds a single dispatch pass.
	PassTimeout time.Duration
}

// PassFunc is the dispatch entry point the trigger invokes.
type PassFunc func(ctx context.Context, tag roster.PassTag) error

type Service struct {
	log  logx.Logger
	pass PassFunc

	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	runCtx context.Context
}

func New(cfg Config, pass PassFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, pass: pass, cfg: cfg}
}

// Start registers both daily entries and starts the cron. Safe to call once;
// Apply() handles later config changes.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runCtx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if !s.cfg.Enabled {
		s.log.Info("reminders disabled")
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("reminders.timezone: %w", err)
		}
		loc = l
	}

	morning, err := specFromHHMM(s.cfg.Morning, "09:00")
	if err != nil {
		return fmt.Errorf("reminders.morning: %w", err)
	}
	afternoon, err := specFromHHMM(s.cfg.Afternoon, "16:00")
	if err != nil {
		return fmt.Errorf("reminders.afternoon: %w", err)
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(morning, func() { s.fire(roster.PassMorning) }); err != nil {
		return err
	}
	if _, err := c.AddFunc(afternoon, func() { s.fire(roster.PassAfternoon) }); err != nil {
		return err
	}
	c.Start()
	s.c = c

	s.log.Info("trigger loop started",
		logx.String("morning", morning),
		logx.String("afternoon", afternoon),
		logx.String("tz", loc.String()),
	)
	return nil
}

func (s *Service) fire(tag roster.PassTag) {
	s.mu.Lock()
	ctx := s.runCtx
	timeout := s.cfg.PassTimeout
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.pass(pctx, tag); err != nil {
		// The pass is abandoned; it will be fully retried at the next tick.
		s.log.Error("dispatch pass failed", logx.String("tag", string(tag)), logx.Err(err))
	}
}

// Apply restarts the cron when schedule settings changed. An invalid new
// schedule is rejected and the old one keeps running.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg == s.cfg {
		return nil
	}
	old := s.cfg
	s.cfg = cfg

	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if err := s.startLocked(); err != nil {
		s.cfg = old
		if rerr := s.startLocked(); rerr != nil {
			return fmt.Errorf("apply failed (%w) and rollback failed: %v", err, rerr)
		}
		return err
	}
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("trigger loop stopped")
}

// specFromHHMM converts a wall-clock "HH:MM" value into a daily cron spec.
func specFromHHMM(raw, def string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		v = def
	}
	h, m, err := parseHHMM(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func parseHHMM(v string) (int, int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return h, m, nil
}
