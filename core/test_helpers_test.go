package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func testLogger() Logger { return glog.Ensure(nil) }

type fakeProvider struct {
	id           string
	label        string
	multiAccount bool
	servers      []string

	mu             sync.Mutex
	sessions       []Session
	accountQueue   []SessionAccount
	defaultAccount SessionAccount
	createErr      error
	getErr         error
	nextID         int
	getCalls       int
	createCalls    int
	removeCalls    int
}

func newFakeProvider(id string) *fakeProvider {
	return &fakeProvider{
		id:             id,
		label:          id + " provider",
		defaultAccount: SessionAccount{ID: "acct-" + id, Label: "octocat"},
	}
}

func (p *fakeProvider) ID() string                     { return p.id }
func (p *fakeProvider) Label() string                  { return p.label }
func (p *fakeProvider) SupportsMultipleAccounts() bool { return p.multiAccount }
func (p *fakeProvider) AuthorizationServers() []string { return p.servers }

func (p *fakeProvider) GetSessions(_ context.Context, scopes []string, opts ProviderSessionOptions) ([]Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	wanted := ScopesKey(scopes)
	var out []Session
	for _, session := range p.sessions {
		if wanted != "" && ScopesKey(session.Scopes) != wanted {
			continue
		}
		if opts.Account != nil && session.Account.Label != opts.Account.Label {
			continue
		}
		out = append(out, cloneSession(session))
	}
	return out, nil
}

func (p *fakeProvider) CreateSession(_ context.Context, scopes []string, _ CreateSessionOptions) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createErr != nil {
		return Session{}, p.createErr
	}
	account := p.defaultAccount
	if len(p.accountQueue) > 0 {
		account = p.accountQueue[0]
		p.accountQueue = p.accountQueue[1:]
	}
	p.nextID++
	session := Session{
		ID:          fmt.Sprintf("%s-session-%d", p.id, p.nextID),
		AccessToken: fmt.Sprintf("token-%s-%d", p.id, p.nextID),
		Account:     account,
		Scopes:      append([]string(nil), scopes...),
	}
	p.sessions = append(p.sessions, cloneSession(session))
	return session, nil
}

func (p *fakeProvider) RemoveSession(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeCalls++
	for idx := range p.sessions {
		if p.sessions[idx].ID == sessionID {
			p.sessions = append(p.sessions[:idx], p.sessions[idx+1:]...)
			return nil
		}
	}
	return fmt.Errorf("fake provider: unknown session %s", sessionID)
}

func (p *fakeProvider) seedSession(id, accountLabel string, scopes ...string) Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	session := Session{
		ID:          id,
		AccessToken: "token-" + id,
		Account:     SessionAccount{ID: "acct-" + accountLabel, Label: accountLabel},
		Scopes:      append([]string(nil), scopes...),
	}
	p.sessions = append(p.sessions, session)
	return cloneSession(session)
}

type scriptedUI struct {
	mu sync.Mutex

	consentFn  func(ConsentRequest) (bool, error)
	selectFn   func(SessionSelectionRequest) (Session, error)
	mismatchFn func(AccountMismatchRequest) (MismatchChoice, error)

	consentCalls       int
	lastConsent        ConsentRequest
	mismatchCalls      int
	accessRequests     []AccessPromptRequest
	newSessionRequests []NewSessionPromptRequest
}

func (u *scriptedUI) ConfirmConsent(_ context.Context, req ConsentRequest) (bool, error) {
	u.mu.Lock()
	u.consentCalls++
	u.lastConsent = req
	fn := u.consentFn
	u.mu.Unlock()
	if fn == nil {
		return true, nil
	}
	return fn(req)
}

func (u *scriptedUI) SelectSession(_ context.Context, req SessionSelectionRequest) (Session, error) {
	u.mu.Lock()
	fn := u.selectFn
	u.mu.Unlock()
	if fn == nil {
		return Session{}, fmt.Errorf("scripted ui: session selection not configured")
	}
	return fn(req)
}

func (u *scriptedUI) ConfirmAccountMismatch(_ context.Context, req AccountMismatchRequest) (MismatchChoice, error) {
	u.mu.Lock()
	u.mismatchCalls++
	fn := u.mismatchFn
	u.mu.Unlock()
	if fn == nil {
		return MismatchKeep, nil
	}
	return fn(req)
}

func (u *scriptedUI) RequestAccess(_ context.Context, req AccessPromptRequest) {
	u.mu.Lock()
	u.accessRequests = append(u.accessRequests, req)
	u.mu.Unlock()
}

func (u *scriptedUI) RequestNewSession(_ context.Context, req NewSessionPromptRequest) {
	u.mu.Lock()
	u.newSessionRequests = append(u.newSessionRequests, req)
	u.mu.Unlock()
}

func (u *scriptedUI) RequestClientRegistration(context.Context, string) (ClientCredential, error) {
	return ClientCredential{}, nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]int64{}}
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	m.counters[name] += value
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *recordingMetrics) counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type stubActivator struct {
	mu     sync.Mutex
	fn     func(ctx context.Context, event string, kind ActivationKind) error
	events []string
}

func (a *stubActivator) ActivateByEvent(ctx context.Context, event string, kind ActivationKind) error {
	a.mu.Lock()
	a.events = append(a.events, event)
	fn := a.fn
	a.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, event, kind)
}

func (a *stubActivator) eventCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func newTestService(t *testing.T, providers []*fakeProvider, ui *scriptedUI, extra ...Option) (*Service, *ProviderRegistry) {
	t.Helper()

	registry := NewProviderRegistry()
	for _, provider := range providers {
		if err := registry.Declare(DeclaredProvider{ID: provider.ID(), Label: provider.Label()}); err != nil {
			t.Fatalf("declare provider %s: %v", provider.ID(), err)
		}
		if err := registry.Register(provider); err != nil {
			t.Fatalf("register provider %s: %v", provider.ID(), err)
		}
	}

	options := []Option{
		WithRegistry(registry),
		WithStateStore(NewMemoryStateStore()),
		WithSecretStore(NewMemorySecretStore()),
	}
	if ui != nil {
		options = append(options, WithUserInterface(ui))
	}
	options = append(options, extra...)

	service, err := NewService(DefaultConfig(), options...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(service.Close)
	return service, registry
}
