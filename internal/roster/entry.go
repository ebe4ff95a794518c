package roster

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for roster dates (day/month/year).
const DateLayout = "02/01/2006"

// Entry is one assignment of a person to a duty on a specific date.
// JSON keys match the persisted record format.
type Entry struct {
	User          string `json:"usuario"`
	Date          string `json:"data"`
	Event         string `json:"evento"`
	MorningSent   bool   `json:"lembrete_09h_enviado"`
	AfternoonSent bool   `json:"lembrete_16h_enviado"`
}

// Roster maps "date-user" keys to entries.
type Roster map[string]Entry

// Directory maps a normalized handle to the Telegram chat ID the transport
// can deliver to.
type Directory map[string]int64

// Key returns the identity key of the entry: one entry per (date, user).
func (e Entry) Key() string { return e.Date + "-" + e.User }

var (
	ErrBadLine     = errors.New("linha inválida")
	ErrInvalidDate = errors.New("data inválida")
)

// ParseDate parses a roster date string in UTC, truncated to day
// granularity. Use it for validation and key normalization only; any
// comparison against a wall-clock "today" must go through ParseDateIn with
// that clock's location, or the midnight instants won't line up.
func ParseDate(s string) (time.Time, error) {
	return ParseDateIn(s, time.UTC)
}

// ParseDateIn parses a roster date string as midnight in loc.
func ParseDateIn(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// DateOnly drops the time-of-day component so dates compare at day
// granularity.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseLine validates one raw roster line:
//
//	@usuario, DD/MM/AAAA, Dia da Semana, Nome do Evento
//
// The handle is lowercased and stripped of its @; the date is re-formatted
// through DateLayout so "1/3/2026" and "01/03/2026" produce the same entry
// key. The weekday label is free text and is NOT validated against the date.
// Delivery flags of the returned entry are always false.
func ParseLine(line string) (Entry, error) {
	parts := strings.SplitN(line, ",", 4)
	if len(parts) != 4 {
		return Entry{}, fmt.Errorf("%w: esperado '@usuario, DD/MM/AAAA, dia, evento'", ErrBadLine)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	rawUser, rawDate, _, event := parts[0], parts[1], parts[2], parts[3]

	if !strings.HasPrefix(rawUser, "@") {
		return Entry{}, fmt.Errorf("%w: o nome de usuário deve começar com @", ErrBadLine)
	}
	user := strings.ToLower(strings.TrimPrefix(rawUser, "@"))
	if user == "" {
		return Entry{}, fmt.Errorf("%w: nome de usuário vazio", ErrBadLine)
	}

	d, err := ParseDate(rawDate)
	if err != nil {
		return Entry{}, err
	}

	if event == "" {
		return Entry{}, fmt.Errorf("%w: evento vazio", ErrBadLine)
	}

	return Entry{
		User:  user,
		Date:  d.Format(DateLayout),
		Event: event,
	}, nil
}
