package roster

import (
	"context"
	"fmt"
	"sort"

	kit "escalabot/internal/transport"
	logx "escalabot/pkg/logx"
)

// PassTag identifies which of the two daily reminder passes is running.
type PassTag string

const (
	PassMorning   PassTag = "morning"
	PassAfternoon PassTag = "afternoon"
)

func morningMessage(e Entry) string {
	return fmt.Sprintf("Olá @%s! Passando para te lembrar que hoje você está escalado(a) para a mídia no evento: *%s*.", e.User, e.Event)
}

const afternoonMessage = "Lembrando! Hoje a mídia está com você!"

// RunDispatchPass performs one reminder pass for the given tag plus the
// expiry sweep, as a single load-mutate-save sequence:
//
//  1. load roster and recipient directory
//  2. compute "today" once (every comparison in the pass uses this value)
//  3. for each entry due today with the tag's flag unset: resolve the
//     recipient, send, and set the flag only after a successful send
//  4. sweep every entry dated strictly before today
//  5. save the roster once
//
// Send failures and unknown recipients are logged and skipped; the entry
// stays eligible for the next scheduled pass of the same tag. Only the final
// save can fail the pass; in that case the in-memory flag flips are lost
// and a reminder already delivered may be re-sent on the next pass. That
// duplicate-send window is an accepted best-effort trade-off.
func (s *Service) RunDispatchPass(ctx context.Context, tag PassTag) error {
	if tag != PassMorning && tag != PassAfternoon {
		return fmt.Errorf("unknown pass tag %q", tag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	roster, err := s.loadRoster(ctx)
	if err != nil {
		return err
	}
	dir, err := s.loadDirectory(ctx)
	if err != nil {
		return err
	}

	today := DateOnly(s.now())
	todayKey := today.Format(DateLayout)
	log := s.log.With(logx.String("tag", string(tag)), logx.String("today", todayKey))
	log.Debug("dispatch pass started", logx.Int("entries", len(roster)))

	// Stable iteration keeps send order and logs deterministic.
	keys := make([]string, 0, len(roster))
	for k := range roster {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sent, failed, unknown int
	var expired []string

	for _, k := range keys {
		e := roster[k]

		if e.Date == todayKey {
			due := (tag == PassMorning && !e.MorningSent) ||
				(tag == PassAfternoon && !e.AfternoonSent)
			if due {
				chatID, ok := dir[e.User]
				if !ok {
					log.Warn("recipient not registered, skipping", logx.String("user", e.User))
					unknown++
				} else if err := s.sendReminder(ctx, tag, e, chatID); err != nil {
					log.Error("reminder send failed", logx.String("user", e.User), logx.Err(err))
					failed++
				} else {
					if tag == PassMorning {
						e.MorningSent = true
					} else {
						e.AfternoonSent = true
					}
					roster[k] = e
					sent++
				}
			}
		}

		// Expiry is evaluated for every entry, due today or not. The stored
		// date is parsed in today's zone so the midnight instants compare
		// correctly west of UTC.
		d, err := ParseDateIn(e.Date, today.Location())
		if err != nil {
			// A hand-edited store can hold malformed dates; those entries are
			// neither reminded nor swept, only reported.
			log.Warn("entry with malformed date kept", logx.String("key", k), logx.Err(err))
			continue
		}
		if d.Before(today) {
			expired = append(expired, k)
		}
	}

	for _, k := range expired {
		delete(roster, k)
	}
	if len(expired) > 0 {
		log.Info("expired entries removed", logx.Int("count", len(expired)))
	}

	if err := s.store.Save(ctx, recordRoster, roster); err != nil {
		return fmt.Errorf("save roster: %w", err)
	}

	log.Info("dispatch pass finished",
		logx.Int("sent", sent),
		logx.Int("failed", failed),
		logx.Int("unknown_recipient", unknown),
		logx.Int("expired", len(expired)),
	)
	return nil
}

func (s *Service) sendReminder(ctx context.Context, tag PassTag, e Entry, chatID int64) error {
	// Pace sends so a large roster can't trip Telegram flood limits. The
	// wait is bounded by the pass context.
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	to := kit.ChatTarget{ChatID: chatID}
	if tag == PassMorning {
		_, err := s.sender.SendText(ctx, to, morningMessage(e), &kit.SendOptions{ParseMode: "Markdown"})
		return err
	}
	_, err := s.sender.SendText(ctx, to, afternoonMessage, nil)
	return err
}
