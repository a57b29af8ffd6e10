package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/services"
	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
)

// ErrStoreClosed is returned by actions on a Store after Close.
var ErrStoreClosed = errors.New("session store closed")

const loginFailedMessage = "Sign in failed. Please try again."

// CredentialProvider is the external credential store the session talks to.
type CredentialProvider interface {
	// Check resolves the credential currently held, or returns ErrNoCredentials.
	Check(ctx context.Context) (*Identity, error)
	Login(ctx context.Context, identifier, password string, rememberMe bool) (*Identity, error)
	Logout(ctx context.Context) error
}

// LoginInput is the sign-in form.
type LoginInput struct {
	Identifier string `json:"identifier" validate:"required,email_or_phone"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// Store owns one client's session state. All transitions go through it and
// every published State satisfies State.Validate.
type Store struct {
	provider CredentialProvider
	logger   *zap.Logger

	mu            sync.Mutex
	state         State
	loginInFlight bool
	closed        bool
	listeners     map[int]func(State)
	nextListener  int
}

// NewStore creates an anonymous store backed by provider.
func NewStore(provider CredentialProvider, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		provider:  provider,
		logger:    logger,
		state:     Anonymous(),
		listeners: make(map[int]func(State)),
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Evaluator returns a permission evaluator over the current grants.
// It is empty whenever the session is not authenticated.
func (s *Store) Evaluator() rbac.Evaluator {
	return s.State().Evaluator()
}

// Subscribe registers fn to receive every published state. The returned
// func removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// CheckAuthStatus asks the provider whether a credential is held and settles
// in authenticated or anonymous. A cancelled or expired ctx counts as failure.
func (s *Store) CheckAuthStatus(ctx context.Context) State {
	if !s.transition(func(st *State) {
		st.Status = StatusChecking
		st.IsLoading = true
		st.Error = ""
	}) {
		return s.State()
	}

	identity, err := s.provider.Check(ctx)
	if err == nil && identity == nil {
		err = ErrNoCredentials
	}
	if err == nil {
		err = ctx.Err()
	}

	if err != nil {
		if !errors.Is(err, ErrNoCredentials) {
			s.logger.Debug("session check failed", zap.Error(err))
		}
		s.transition(func(st *State) {
			*st = Anonymous()
			st.Error = NoAuthMessage
		})
		return s.State()
	}

	s.transition(func(st *State) {
		*st = authenticatedState(identity)
	})
	return s.State()
}

// LoginUser validates the form, then exchanges it for an identity. Invalid
// input never reaches the provider and leaves the state untouched. A second
// call while one is running fails with services.ErrLoginInProgress.
func (s *Store) LoginUser(ctx context.Context, in LoginInput) (*Identity, error) {
	in.Identifier = strings.TrimSpace(in.Identifier)
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	if s.loginInFlight {
		s.mu.Unlock()
		return nil, services.ErrLoginInProgress
	}
	s.loginInFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loginInFlight = false
		s.mu.Unlock()
	}()

	// IsLoading belongs to the startup check only.
	s.transition(func(st *State) {
		st.Error = ""
	})

	identity, err := s.provider.Login(ctx, in.Identifier, in.Password, in.RememberMe)
	if err == nil && identity == nil {
		err = services.ErrInvalidCredentials
	}
	if err != nil {
		msg := loginErrorMessage(err)
		s.transition(func(st *State) {
			*st = Anonymous()
			st.Error = msg
		})
		return nil, err
	}

	s.transition(func(st *State) {
		*st = authenticatedState(identity)
	})
	return identity, nil
}

// LogoutUser tells the provider to drop the credential and always ends
// anonymous, even if the provider fails.
func (s *Store) LogoutUser(ctx context.Context) error {
	err := s.provider.Logout(ctx)
	if err != nil {
		s.logger.Warn("provider logout failed", zap.Error(err))
	}
	s.transition(func(st *State) {
		*st = Anonymous()
	})
	return err
}

// ClearError drops a displayed error.
func (s *Store) ClearError() {
	s.transition(func(st *State) {
		st.Error = ""
	})
}

// Close detaches listeners; later actions are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = make(map[int]func(State))
}

// transition applies fn, normalizes, and notifies listeners outside the lock.
// It reports false when the store is closed.
func (s *Store) transition(fn func(*State)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	next := s.state.clone()
	fn(&next)
	next = next.normalize()
	if err := next.Validate(); err != nil {
		s.logger.Error("session state invariant violated", zap.Error(err))
		next = Anonymous()
	}
	s.state = next

	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next.clone())
	}
	return true
}

func loginErrorMessage(err error) string {
	switch {
	case services.IsUnauthorizedError(err), services.IsValidationError(err), services.IsForbiddenError(err):
		var de *services.DomainError
		if errors.As(err, &de) {
			return capitalize(de.Message)
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Sign in timed out. Please try again."
	}
	return loginFailedMessage
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
