package roster

import (
	"context"
	"errors"
	"fmt"

	logx "escalabot/pkg/logx"
)

// The topic gate restricts roster mutation to one forum topic of the group.
// Read access (month view) only requires the gate to be configured, not to
// match the issuing topic. Kept asymmetric on purpose; see DESIGN.md.
var (
	ErrGateNotConfigured = errors.New("tópico de escalas ainda não configurado")
	ErrWrongTopic        = errors.New("comando enviado fora do tópico configurado")
	ErrInvalidTopic      = errors.New("id de tópico inválido")
)

type topicConfig struct {
	ThreadID int `json:"topico_escala_id"`
}

// ConfigureTopic makes threadID the authoritative topic. It unconditionally
// overwrites any previous configuration: the last configurer wins.
func (s *Service) ConfigureTopic(ctx context.Context, threadID int) error {
	if threadID == 0 {
		return ErrInvalidTopic
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(ctx, recordTopic, topicConfig{ThreadID: threadID}); err != nil {
		return fmt.Errorf("save topic config: %w", err)
	}
	s.log.Info("topic gate configured", logx.Int("thread_id", threadID))
	return nil
}

// Authorize reports whether a mutation issued from threadID may proceed.
// The two denial causes are distinct so the caller can tell the user whether
// to configure the gate or to move to the right topic.
func (s *Service) Authorize(ctx context.Context, threadID int) error {
	var tc topicConfig
	found, err := s.store.Load(ctx, recordTopic, &tc)
	if err != nil {
		return fmt.Errorf("load topic config: %w", err)
	}
	if !found || tc.ThreadID == 0 {
		return ErrGateNotConfigured
	}
	if threadID != tc.ThreadID {
		return ErrWrongTopic
	}
	return nil
}

// GateConfigured reports whether any authoritative topic has been set.
func (s *Service) GateConfigured(ctx context.Context) (bool, error) {
	var tc topicConfig
	found, err := s.store.Load(ctx, recordTopic, &tc)
	if err != nil {
		return false, fmt.Errorf("load topic config: %w", err)
	}
	return found && tc.ThreadID != 0, nil
}
