// Package session holds short-lived per-browser state: the pending CSRF
// state of each authorization flow, the authenticated clinician identity,
// and the consented-patient token. Fields have independent lifecycles and
// explicit clear operations so one flow can never leak into another.
package session

import (
	"context"
	"sync"
	"time"
)

type Flow string

const (
	FlowLogin   Flow = "login"
	FlowConsent Flow = "consent"
)

type Identity struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
}

type Data struct {
	PendingStates map[Flow]string `json:"pending_states,omitempty"`
	Identity      *Identity       `json:"identity,omitempty"`
	ConsentToken  string          `json:"consent_token,omitempty"`
}

// State returns the pending CSRF state for the flow, if any.
func (d Data) State(flow Flow) (string, bool) {
	state, ok := d.PendingStates[flow]
	return state, ok && state != ""
}

func (d Data) Authenticated() bool {
	return d.Identity != nil && d.Identity.Subject != ""
}

// Store is scoped to a single caller per session id; a read immediately
// following a write within the same request must see the write.
type Store interface {
	Get(ctx context.Context, id string) (Data, error)
	SetState(ctx context.Context, id string, flow Flow, state string) error
	ClearState(ctx context.Context, id string, flow Flow) error
	SetIdentity(ctx context.Context, id string, identity Identity) error
	SetConsentToken(ctx context.Context, id string, token string) error
}

// MemoryStore keeps sessions in-process. It backs tests and deployments
// without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*memoryEntry
	nowFunc func() time.Time
}

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
		nowFunc: time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || s.nowFunc().After(entry.expiresAt) {
		delete(s.entries, id)
		return Data{}, nil
	}
	return entry.data, nil
}

func (s *MemoryStore) SetState(ctx context.Context, id string, flow Flow, state string) error {
	return s.mutate(id, func(d *Data) {
		if d.PendingStates == nil {
			d.PendingStates = make(map[Flow]string)
		}
		d.PendingStates[flow] = state
	})
}

func (s *MemoryStore) ClearState(ctx context.Context, id string, flow Flow) error {
	return s.mutate(id, func(d *Data) {
		delete(d.PendingStates, flow)
	})
}

func (s *MemoryStore) SetIdentity(ctx context.Context, id string, identity Identity) error {
	return s.mutate(id, func(d *Data) {
		d.Identity = &identity
	})
}

func (s *MemoryStore) SetConsentToken(ctx context.Context, id string, token string) error {
	return s.mutate(id, func(d *Data) {
		d.ConsentToken = token
	})
}

func (s *MemoryStore) mutate(id string, fn func(*Data)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	entry, ok := s.entries[id]
	if !ok || now.After(entry.expiresAt) {
		entry = &memoryEntry{}
		s.entries[id] = entry
	}
	fn(&entry.data)
	entry.expiresAt = now.Add(s.ttl)
	return nil
}
