package mcloones

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSub struct {
	p  *fakeProvider
	id int
}

func (s *fakeSub) Cancel() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	delete(s.p.handlers, s.id)
}

// fakeProvider delivers auth events synchronously from inside its methods, the
// way hosted auth SDKs do.
type fakeProvider struct {
	mu       sync.Mutex
	handlers map[int]func(AuthEvent)
	nextID   int

	accounts map[string]fakeAccount
	current  *ProviderSession

	signInErr  error
	signUpErr  error
	signOutErr error
	getErr     error
	oauthErr   error

	requireConfirmation bool
	signOutCalls        int
}

type fakeAccount struct {
	id     string
	secret string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		handlers: map[int]func(AuthEvent){},
		accounts: map[string]fakeAccount{},
	}
}

func (p *fakeProvider) addAccount(email, id, secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[email] = fakeAccount{id: id, secret: secret}
}

func (p *fakeProvider) setCurrent(ps *ProviderSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = ps
}

func (p *fakeProvider) emit(ev AuthEvent) {
	p.mu.Lock()
	hs := make([]func(AuthEvent), 0, len(p.handlers))
	for _, h := range p.handlers {
		hs = append(hs, h)
	}
	p.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (p *fakeProvider) handlerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, secret string) (*ProviderSession, error) {
	p.mu.Lock()
	if p.signInErr != nil {
		err := p.signInErr
		p.mu.Unlock()
		return nil, err
	}
	acc, ok := p.accounts[email]
	if !ok || acc.secret != secret {
		p.mu.Unlock()
		return nil, ErrInvalidCredentials
	}
	ps := &ProviderSession{
		AccessToken: "tok-" + acc.id,
		ExpiresAt:   time.Now().Add(time.Hour),
		Identity:    Identity{ID: acc.id, Email: email},
	}
	p.current = ps
	p.mu.Unlock()

	p.emit(AuthEvent{Type: AuthSignedIn, Session: ps})
	return ps, nil
}

func (p *fakeProvider) SignUp(_ context.Context, email, secret string, _ SignUpMetadata) (*SignUpResult, error) {
	p.mu.Lock()
	if p.signUpErr != nil {
		err := p.signUpErr
		p.mu.Unlock()
		return nil, err
	}
	id := "u-" + email
	p.accounts[email] = fakeAccount{id: id, secret: secret}
	if p.requireConfirmation {
		p.mu.Unlock()
		return &SignUpResult{Identity: Identity{ID: id, Email: email}}, nil
	}
	ps := &ProviderSession{AccessToken: "tok-" + id, Identity: Identity{ID: id, Email: email}}
	p.current = ps
	p.mu.Unlock()

	p.emit(AuthEvent{Type: AuthSignedIn, Session: ps})
	return &SignUpResult{Identity: ps.Identity, Session: ps}, nil
}

func (p *fakeProvider) SignInWithOAuth(_ context.Context, provider, redirectURL string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oauthErr != nil {
		return "", p.oauthErr
	}
	return "https://accounts.example.com/" + provider + "?redirect_uri=" + redirectURL, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.signOutCalls++
	if p.signOutErr != nil {
		err := p.signOutErr
		p.mu.Unlock()
		return err
	}
	p.current = nil
	p.mu.Unlock()

	p.emit(AuthEvent{Type: AuthSignedOut})
	return nil
}

func (p *fakeProvider) GetSession(context.Context) (*ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	return p.current, nil
}

func (p *fakeProvider) OnAuthStateChange(handler func(AuthEvent)) Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.handlers[p.nextID] = handler
	return &fakeSub{p: p, id: p.nextID}
}

type fakeProfiles struct {
	mu    sync.Mutex
	rows  map[string]Profile
	err   error
	calls int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: map[string]Profile{}}
}

func (s *fakeProfiles) put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.ID] = p
}

func (s *fakeProfiles) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
}

func (s *fakeProfiles) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeProfiles) GetProfileByID(_ context.Context, id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return Profile{}, s.err
	}
	p, ok := s.rows[id]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	return p, nil
}

var errNetwork = errors.New("dial tcp 10.0.0.1:443: connect: connection refused")

func newTestManager(t *testing.T, p IdentityProvider, s ProfileStore) *Manager {
	t.Helper()

	m, err := New().
		WithIdentityProvider(p).
		WithProfileStore(s).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func startedManager(t *testing.T, p IdentityProvider, s ProfileStore) *Manager {
	t.Helper()

	m := newTestManager(t, p, s)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return m
}

func seedAlice(p *fakeProvider, s *fakeProfiles, role Role) {
	p.addAccount("alice@mcloones.com", "u-alice", "secret123")
	s.put(Profile{ID: "u-alice", Role: role, FullName: "Alice Doyle", Email: "alice@mcloones.com"})
}

func assertAnonymous(t *testing.T, m *Manager) {
	t.Helper()

	s := m.CurrentSession()
	if s.State != StateAnonymous || s.Identity != nil || s.Profile != nil {
		t.Fatalf("expected anonymous session, got %+v", s)
	}
	v := m.CurrentView()
	if v.IsAuthenticated || v.IsManager || v.Loading || v.Role != RoleNone {
		t.Fatalf("expected anonymous view, got %+v", v)
	}
}

func nextEvent(t *testing.T, sub *SessionSubscription) SessionEvent {
	t.Helper()

	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session event")
	}
	return SessionEvent{}
}

func drain(sub *SessionSubscription) []SessionEvent {
	var out []SessionEvent
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
