package backoffice

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Account names a backoffice account and its credentials.
type Account struct {
	Name        string
	Credentials Credentials
}

// Pool holds one Client (and therefore one Session) per backoffice account.
// All sessions in a pool share a single-flight group keyed by account name,
// so concurrent rejections for one account trigger one login while other
// accounts proceed independently.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*Client
	flight  singleflight.Group
	cfg     Config
	loginer Loginer
}

// NewPool creates a pool with a client for every account.
func NewPool(cfg Config, accounts []Account) (*Pool, error) {
	p := &Pool{
		clients: make(map[string]*Client, len(accounts)),
		cfg:     cfg,
		loginer: NewLoginer(cfg),
	}
	for _, acct := range accounts {
		if err := p.Add(acct); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add registers a new account.
func (p *Pool) Add(acct Account) error {
	if acct.Name == "" {
		return fmt.Errorf("backoffice account name is required")
	}
	if !acct.Credentials.CanLogin() && acct.Credentials.StaticToken == "" {
		return fmt.Errorf("backoffice account %q has neither username/password nor a token", acct.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.clients[acct.Name]; exists {
		return fmt.Errorf("backoffice account %q registered twice", acct.Name)
	}

	session := NewSession(acct.Name, acct.Credentials, p.loginer,
		WithTTL(p.cfg.SessionTTL),
		WithClock(p.cfg.Clock),
		WithFlightGroup(&p.flight),
		WithReauthHook(p.cfg.Metrics.RecordReauthentication),
	)
	p.clients[acct.Name] = NewClient(p.cfg, session)
	return nil
}

// Client returns the client for the named account.
func (p *Pool) Client(account string) (*Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.clients[account]
	if !ok {
		return nil, fmt.Errorf("unknown backoffice account %q", account)
	}
	return c, nil
}

// Accounts returns the registered account names in sorted order.
func (p *Pool) Accounts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
