package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"escalabot/internal/roster"
	kit "escalabot/internal/transport"
	"escalabot/internal/transport/telegram/router"
)

const (
	replyNeedUsername  = "Por favor, configure um nome de usuário (@username) nas configurações do Telegram para que eu possa te encontrar na escala."
	replyNotConfigured = "⚠️ Atenção: O bot ainda não foi configurado. Use /configurar_topico dentro do tópico de escalas."
	replyWrongTopic    = "Este comando só pode ser usado no tópico de escalas configurado."
	replyTopicOnly     = "Este comando só pode ser usado dentro de um tópico de um grupo."
	replySaveFailed    = "Não consegui salvar agora, tente novamente em instantes."
	replyMonthEmpty    = "Não há nenhuma escala programada para o restante deste mês."

	usageIngest = "Uso: /escala\n@usuario, DD/MM/AAAA, Dia da Semana, Nome do Evento\n@outro_usuario, DD/MM/AAAA, Dia da Semana, Nome do Evento"
	usageDelete = "Uso incorreto. Por favor, especifique a data.\nExemplo: `/apagarescala 28/09/2025`"
)

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "registra você como destinatário dos lembretes",
			Handle:      a.cmdStart,
		},
		{
			Name:        "configurar_topico",
			Description: "define o tópico de escalas",
			Handle:      a.cmdConfigureTopic,
		},
		{
			Name:        "escala",
			Description: "salva entradas da escala",
			Usage:       usageIngest,
			Handle:      a.cmdIngest,
		},
		{
			Name:        "apagarescala",
			Description: "apaga as entradas de uma data",
			Usage:       usageDelete,
			Handle:      a.cmdDelete,
		},
		{
			Name:        "escaladomes",
			Description: "mostra a escala do restante do mês",
			Handle:      a.cmdMonth,
		},
	}
}

func (a *App) cmdStart(ctx context.Context, req *router.Request) error {
	msg := req.Message
	if msg.FromUsername == "" {
		return req.Reply(ctx, replyNeedUsername, nil)
	}
	// Reminders go to the person, not to whichever chat carried the /start
	// (a group /start would otherwise leak their reminders into the group).
	if err := a.rost.Register(ctx, msg.FromUsername, msg.FromID); err != nil {
		_ = req.Reply(ctx, replySaveFailed, nil)
		return err
	}
	greet := fmt.Sprintf("Olá, %s! Registro concluído. Você receberá os lembretes da escala por aqui.", firstNameOr(msg))
	return req.Reply(ctx, greet, nil)
}

func (a *App) cmdConfigureTopic(ctx context.Context, req *router.Request) error {
	msg := req.Message
	if !msg.IsGroup || msg.ThreadID == 0 {
		return req.Reply(ctx, replyTopicOnly, nil)
	}
	if err := a.rost.ConfigureTopic(ctx, msg.ThreadID); err != nil {
		_ = req.Reply(ctx, replySaveFailed, nil)
		return err
	}
	return req.Reply(ctx, "✅ Tópico de escalas configurado com sucesso! A partir de agora os comandos de escala só funcionam aqui.", nil)
}

func (a *App) cmdIngest(ctx context.Context, req *router.Request) error {
	if done, err := a.requireTopic(ctx, req); done {
		return err
	}

	lines := ingestLines(req.Message.Text)
	if len(lines) == 0 {
		return req.Reply(ctx, usageIngest, nil)
	}

	rep, err := a.rost.Ingest(ctx, lines)
	if err != nil {
		_ = req.Reply(ctx, replySaveFailed, nil)
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d entrada(s) da escala foram salvas com sucesso!", rep.Accepted)
	if len(rep.Rejected) > 0 {
		b.WriteString("\n\nAs linhas abaixo não puderam ser entendidas e foram ignoradas:")
		for _, l := range rep.Rejected {
			b.WriteString("\n")
			b.WriteString(l)
		}
	}
	return req.Reply(ctx, b.String(), nil)
}

func (a *App) cmdDelete(ctx context.Context, req *router.Request) error {
	if done, err := a.requireTopic(ctx, req); done {
		return err
	}
	if len(req.Args) == 0 {
		return req.Reply(ctx, usageDelete, &kit.SendOptions{ParseMode: "Markdown"})
	}

	date := req.Args[0]
	removed, err := a.rost.DeleteByDate(ctx, date)
	switch {
	case errors.Is(err, roster.ErrInvalidDate):
		return req.Reply(ctx, usageDelete, &kit.SendOptions{ParseMode: "Markdown"})
	case err != nil:
		_ = req.Reply(ctx, replySaveFailed, nil)
		return err
	case removed == 0:
		return req.Reply(ctx, fmt.Sprintf("Nenhuma escala encontrada para a data %s.", date), nil)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Sucesso! %d entrada(s) da escala de %s foram apagadas.", removed, date), nil)
}

func (a *App) cmdMonth(ctx context.Context, req *router.Request) error {
	configured, err := a.rost.GateConfigured(ctx)
	if err != nil {
		return err
	}
	if !configured {
		return req.Reply(ctx, replyNotConfigured, nil)
	}

	now := time.Now()
	groups, err := a.rost.MonthView(ctx, now)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return req.Reply(ctx, replyMonthEmpty, nil)
	}
	return req.Reply(ctx, renderMonth(groups, now), &kit.SendOptions{ParseMode: "Markdown"})
}

// requireTopic enforces the topic gate for mutating commands. A true return
// means the request was already answered (gate refusal or reply failure).
func (a *App) requireTopic(ctx context.Context, req *router.Request) (bool, error) {
	err := a.rost.Authorize(ctx, req.Message.ThreadID)
	switch {
	case errors.Is(err, roster.ErrGateNotConfigured):
		return true, req.Reply(ctx, replyNotConfigured, nil)
	case errors.Is(err, roster.ErrWrongTopic):
		return true, req.Reply(ctx, replyWrongTopic, nil)
	case err != nil:
		return true, err
	}
	return false, nil
}

func firstNameOr(msg *kit.Message) string {
	if msg.FromFirst != "" {
		return msg.FromFirst
	}
	return "@" + msg.FromUsername
}

// ingestLines extracts the roster lines from a /escala message: the command
// token is stripped from the first line, blank lines are dropped.
func ingestLines(text string) []string {
	raw := strings.Split(text, "\n")
	if len(raw) > 0 {
		first := strings.TrimSpace(raw[0])
		if strings.HasPrefix(first, "/") {
			if i := strings.IndexAny(first, " \t"); i >= 0 {
				first = first[i+1:]
			} else {
				first = ""
			}
		}
		raw[0] = first
	}

	var lines []string
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

var weekdaysPT = map[time.Weekday]string{
	time.Sunday:    "Domingo",
	time.Monday:    "Segunda-feira",
	time.Tuesday:   "Terça-feira",
	time.Wednesday: "Quarta-feira",
	time.Thursday:  "Quinta-feira",
	time.Friday:    "Sexta-feira",
	time.Saturday:  "Sábado",
}

var monthsPT = map[time.Month]string{
	time.January:   "Janeiro",
	time.February:  "Fevereiro",
	time.March:     "Março",
	time.April:     "Abril",
	time.May:       "Maio",
	time.June:      "Junho",
	time.July:      "Julho",
	time.August:    "Agosto",
	time.September: "Setembro",
	time.October:   "Outubro",
	time.November:  "Novembro",
	time.December:  "Dezembro",
}

// renderMonth formats the month view as a Markdown message grouped by date.
func renderMonth(groups []roster.DayGroup, ref time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 *Escala para o restante de %s*\n", monthsPT[ref.Month()])
	for _, g := range groups {
		fmt.Fprintf(&b, "\n*%s (%s)*\n", g.Date.Format(roster.DateLayout), weekdaysPT[g.Date.Weekday()])
		for _, e := range g.Entries {
			fmt.Fprintf(&b, "  - `@%s`: %s\n", e.User, e.Event)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
