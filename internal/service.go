package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SessionService binds a user's chat sessions in the store to the
// in-memory conversation.
type SessionService struct {
	store SessionStore
}

func NewSessionService(store SessionStore) *SessionService {
	return &SessionService{store: store}
}

func (s *SessionService) Start(ctx context.Context, username, name string) (SessionInfo, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return SessionInfo{}, errors.New("username is required")
	}

	userID, err := s.store.CreateOrTouchUser(ctx, username)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("create user: %w", err)
	}

	sessionID, err := s.store.CreateSession(ctx, userID, name)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("create session: %w", err)
	}

	return s.store.GetSession(ctx, sessionID)
}

// Resume returns the session and its messages in order.
func (s *SessionService) Resume(ctx context.Context, sessionID int64) (SessionInfo, []Turn, error) {
	info, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return SessionInfo{}, nil, err
	}

	turns, err := s.store.LoadMessages(ctx, sessionID)
	if err != nil {
		return SessionInfo{}, nil, fmt.Errorf("load messages: %w", err)
	}
	return info, turns, nil
}

func (s *SessionService) List(ctx context.Context, username string) ([]SessionInfo, error) {
	userID, err := s.store.CreateOrTouchUser(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return s.store.ListSessions(ctx, userID)
}

// Record persists one answered exchange.
func (s *SessionService) Record(ctx context.Context, sessionID int64, question, answer string) error {
	if err := s.store.AppendExchange(ctx, sessionID, question, answer); err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	return nil
}

func (s *SessionService) Delete(ctx context.Context, sessionID int64) error {
	return s.store.DeleteSession(ctx, sessionID)
}

func (s *SessionService) Close() error {
	return s.store.Close()
}
