package backoffice

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/posbridge/posbridge/pkg/apierrors"
)

// DefaultSessionTTL is the conservative lifetime assumed for a backoffice session.
// The upstream never reports an expiry, so this is a heuristic bound.
const DefaultSessionTTL = 24 * time.Hour

// Credentials identify a backoffice account. Either Username/Password or a
// pre-obtained StaticToken must be set; both may be set.
type Credentials struct {
	Username    string
	Password    string
	StaticToken string
}

// CanLogin reports whether the credentials allow a fresh login.
func (c Credentials) CanLogin() bool {
	return c.Username != "" && c.Password != ""
}

// SessionState is a snapshot of the current session.
type SessionState struct {
	Token           string
	IssuedAt        time.Time
	EstimatedExpiry time.Time
	UserID          string
}

// Authenticated reports whether the snapshot carries a token.
func (s SessionState) Authenticated() bool {
	return s.Token != ""
}

// LoginResult is what a successful login returns.
type LoginResult struct {
	SessionID string
	UserID    string
}

// Loginer performs the login exchange against the backoffice.
type Loginer interface {
	Login(ctx context.Context, creds Credentials) (LoginResult, error)
}

// Session owns the credentials and current token of one backoffice account.
// It is safe for concurrent use; logins are single-flight per account.
type Session struct {
	account string
	creds   Credentials
	loginer Loginer
	ttl     time.Duration
	now     func() time.Time
	flight  *singleflight.Group
	onRelog func(account string)

	mu    sync.Mutex
	state SessionState
	// static is true while the pre-obtained token has never been invalidated.
	static bool
	// established is set once the session has held any token.
	established bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTTL overrides the session lifetime estimate.
func WithTTL(ttl time.Duration) SessionOption {
	return func(s *Session) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFlightGroup shares a single-flight group between sessions; logins are keyed by account.
func WithFlightGroup(g *singleflight.Group) SessionOption {
	return func(s *Session) {
		if g != nil {
			s.flight = g
		}
	}
}

// WithReauthHook registers a callback invoked after a login that replaces an
// earlier session. The first login of a session does not call it.
func WithReauthHook(hook func(account string)) SessionOption {
	return func(s *Session) {
		s.onRelog = hook
	}
}

// NewSession creates a session for the given account.
func NewSession(account string, creds Credentials, loginer Loginer, opts ...SessionOption) *Session {
	s := &Session{
		account: account,
		creds:   creds,
		loginer: loginer,
		ttl:     DefaultSessionTTL,
		now:     time.Now,
		flight:  &singleflight.Group{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if creds.StaticToken != "" {
		s.static = true
		s.established = true
		s.state = SessionState{
			Token:    creds.StaticToken,
			IssuedAt: s.now(),
		}
	}

	return s
}

// Account returns the account identity.
func (s *Session) Account() string {
	return s.account
}

// State returns a snapshot of the current session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnsureValid logs in when there is no token or the estimated expiry has passed.
func (s *Session) EnsureValid(ctx context.Context) error {
	s.mu.Lock()
	if s.validLocked() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if !s.creds.CanLogin() {
		return apierrors.NewAuthError("session invalid and no credentials available", nil).
			WithAccount(s.account)
	}
	if s.loginer == nil {
		return apierrors.NewAuthError("no login endpoint configured", nil).
			WithAccount(s.account)
	}

	// The login outlives any single caller: each waiter gives up on its own
	// ctx while the shared attempt runs to completion.
	ch := s.flight.DoChan(s.account, func() (interface{}, error) {
		// Another caller may have completed a login while we waited.
		s.mu.Lock()
		valid := s.validLocked()
		s.mu.Unlock()
		if valid {
			return nil, nil
		}

		res, err := s.loginer.Login(context.WithoutCancel(ctx), s.creds)
		if err != nil {
			return nil, err
		}

		issued := s.now()
		s.mu.Lock()
		s.state = SessionState{
			Token:           res.SessionID,
			IssuedAt:        issued,
			EstimatedExpiry: issued.Add(s.ttl),
			UserID:          res.UserID,
		}
		s.static = false
		relog := s.established
		s.established = true
		s.mu.Unlock()

		if relog && s.onRelog != nil {
			s.onRelog(s.account)
		}
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invalidate clears the token and expiry. It is idempotent.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// InvalidateToken clears the session only if token is still the current one,
// so concurrent rejections of the same stale token cause a single re-login.
func (s *Session) InvalidateToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Token == token {
		s.clearLocked()
	}
}

func (s *Session) clearLocked() {
	s.state = SessionState{}
	s.static = false
}

func (s *Session) validLocked() bool {
	if s.state.Token == "" {
		return false
	}
	if s.static {
		return true
	}
	return !s.now().After(s.state.EstimatedExpiry)
}
