package router

import (
	"context"
	"strings"
	"sync"
	"time"

	rtsup "escalabot/internal/runtime/supervisor"
	kit "escalabot/internal/transport"
	logx "escalabot/pkg/logx"
)

// Command is one bot command. Routes are flat ("/start", "/escala", ...);
// this bot has no subcommands.
type Command struct {
	Name        string
	Description string
	Usage       string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	Command string
	Args    []string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the chat (and topic) the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

type Manager struct {
	mu   sync.RWMutex
	cmds map[string]Command

	log     logx.Logger
	adapter kit.Adapter

	jobs chan func()
}

func NewManager(log logx.Logger, adapter kit.Adapter) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		cmds:    map[string]Command{},
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), 64),
	}
}

func (m *Manager) SetRegistry(cmds []Command) {
	reg := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		name := strings.TrimPrefix(strings.TrimSpace(c.Name), "/")
		if name == "" || c.Handle == nil {
			continue
		}
		reg[name] = c
	}
	m.mu.Lock()
	m.cmds = reg
	m.mu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *Manager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates and runs command handlers on a small worker
// pool so one slow handler can't stall the poll loop.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	const workers = 2

	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)

	var closeOnce sync.Once
	closeJobs := func() { closeOnce.Do(func() { close(m.jobs) }) }

	for i := 0; i < workers; i++ {
		sup.GoRestart("command.worker", func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job != nil {
						job()
					}
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeMessage(ctx, up)
		}
	}
}

func (m *Manager) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	word := strings.TrimPrefix(fields[0], "/")
	// Commands in groups may arrive as "/cmd@botname".
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	m.mu.RLock()
	cmd, ok := m.cmds[word]
	m.mu.RUnlock()
	if !ok {
		// Other bots own their own slash commands in the same group; never
		// reply to commands we don't know.
		m.log.Debug("unknown command ignored", logx.String("cmd", word), logx.Int64("chat_id", msg.ChatID))
		return
	}

	req := &Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		Command: cmd.Name,
		Args:    fields[1:],
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "Estou ocupado agora, tente novamente em instantes.", nil)
	}
}
