// Package session owns the client's authentication state: the bearer token
// and the role it grants. It is the only writer of that state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/fentz26/reprocess/internal/store"
)

// Persisted keys.
const (
	KeyToken = "token"
	KeyRole  = "role"
)

// Session is the token and role pair. A zero Session is logged out.
type Session struct {
	Token string
	Role  models.Role
}

// Authenticated reports whether s carries a token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// KV is the persistence the store writes through to.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	SetMany(ctx context.Context, pairs map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*api.LoginResponse, error)
}

// Store holds the current session, persists every change and notifies
// subscribers after each one.
type Store struct {
	// writeMu orders persistence together with the in-memory update.
	writeMu sync.Mutex
	mu      sync.RWMutex
	kv      KV
	auth    Authenticator
	current Session
	subs    map[int]func(Session)
	nextSub int
	logger  *slog.Logger
}

// New loads any persisted session from kv.
func New(ctx context.Context, kv KV) (*Store, error) {
	s := &Store{
		kv:   kv,
		subs: make(map[int]func(Session)),
	}

	token, err := kv.Get(ctx, KeyToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load token: %w", err)
	}
	role, err := kv.Get(ctx, KeyRole)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load role: %w", err)
	}
	s.current = Session{Token: token, Role: models.ParseRole(role)}
	return s, nil
}

// SetAuthenticator sets the backend used by Login.
func (s *Store) SetAuthenticator(a Authenticator) {
	s.mu.Lock()
	s.auth = a
	s.mu.Unlock()
}

// SetLogger sets the logger.
func (s *Store) SetLogger(l *slog.Logger) {
	s.mu.Lock()
	s.logger = l
	s.mu.Unlock()
}

// Read returns the current session.
func (s *Store) Read() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token implements api.TokenSource.
func (s *Store) Token() string {
	return s.Read().Token
}

// CurrentRole returns the persisted role, viewer when absent or unrecognised.
func (s *Store) CurrentRole() models.Role {
	return models.ParseRole(string(s.Read().Role))
}

// Set persists sess and notifies subscribers.
func (s *Store) Set(sess Session) error {
	sess.Role = models.ParseRole(string(sess.Role))
	s.writeMu.Lock()
	err := s.kv.SetMany(context.Background(), map[string]string{
		KeyToken: sess.Token,
		KeyRole:  string(sess.Role),
	})
	if err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("persist session: %w", err)
	}
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.notify(sess)
	return nil
}

// Clear removes the persisted session and notifies subscribers. Clearing an
// empty session is not an error.
func (s *Store) Clear() error {
	s.writeMu.Lock()
	if err := s.kv.Delete(context.Background(), KeyToken, KeyRole); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("clear session: %w", err)
	}
	s.mu.Lock()
	s.current = Session{Role: models.RoleViewer}
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.notify(Session{Role: models.RoleViewer})
	return nil
}

// Subscribe registers fn to be called after every change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Login authenticates against the backend and persists the result. A
// rejected login returns the backend's *api.AuthError unchanged.
func (s *Store) Login(ctx context.Context, username, password string) (Session, error) {
	s.mu.RLock()
	auth := s.auth
	s.mu.RUnlock()
	if auth == nil {
		return Session{}, ErrNoAuthenticator
	}

	resp, err := auth.Login(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	if resp.AccessToken == "" {
		return Session{}, ErrEmptyToken
	}

	sess := Session{Token: resp.AccessToken, Role: models.ParseRole(resp.Role)}
	if err := s.Set(sess); err != nil {
		return Session{}, err
	}
	s.log().Info("logged in", "user", username, "role", sess.Role)
	return sess, nil
}

// Logout clears the session. It is idempotent.
func (s *Store) Logout() error {
	if err := s.Clear(); err != nil {
		return err
	}
	s.log().Info("logged out")
	return nil
}

// Invalidate drops a session the backend has rejected.
func (s *Store) Invalidate() {
	if !s.Read().Authenticated() {
		return
	}
	if err := s.Clear(); err != nil {
		s.log().Error("failed to clear rejected session", "error", err)
		return
	}
	s.log().Warn("session rejected by backend, logged out")
}

func (s *Store) notify(sess Session) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Session), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(sess)
	}
}

func (s *Store) log() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return logging.OrDiscard(s.logger)
}
