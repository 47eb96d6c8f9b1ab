package domain

import (
	"sync"

	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/utils"
)

// SwitchingState is the inspectable in-flight switch marker. InProgress is
// the only gate under which ActiveAddress may change.
type SwitchingState struct {
	InProgress bool   `json:"in_progress"`
	Target     string `json:"target,omitempty"`
}

// SessionSnapshot is the read-only projection handed to the presentation
// layer.
type SessionSnapshot struct {
	Connected       bool           `json:"connected"`
	PrimaryAddress  string         `json:"primary_address,omitempty"`
	ActiveAddress   string         `json:"active_address,omitempty"`
	LinkedAddresses []string       `json:"linked_addresses,omitempty"`
	Switching       SwitchingState `json:"switching"`
}

// Session is the ephemeral identity state for one client instance. Invariant:
// once initialized, ActiveAddress is always the primary or one of its linked
// addresses.
type Session struct {
	mu        sync.Mutex
	connected bool
	primary   string
	active    string
	linked    map[string]struct{}
	switching SwitchingState
}

func NewSession() *Session {
	return &Session{linked: make(map[string]struct{})}
}

// Initialize installs a resolved identity. Safe to re-run on every
// reconnect; the caller (identity service) is responsible for the
// resolution algorithm itself.
func (s *Session) Initialize(primary, active string, linked []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.primary = utils.CanonicalAddress(primary)
	s.active = utils.CanonicalAddress(active)
	s.linked = make(map[string]struct{}, len(linked))
	for _, a := range linked {
		s.linked[utils.CanonicalAddress(a)] = struct{}{}
	}
	// A reconnect supersedes whatever switch was in flight; a stale marker
	// would lock the new session out of switching forever.
	s.switching = SwitchingState{}
}

// Teardown degrades to "no active identity". Not an error state.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.primary = ""
	s.active = ""
	s.linked = make(map[string]struct{})
	s.switching = SwitchingState{}
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Owns reports whether addr is the primary or a linked address of this
// session.
func (s *Session) Owns(addr string) bool {
	addr = utils.CanonicalAddress(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	if addr == s.primary {
		return true
	}
	_, ok := s.linked[addr]
	return ok
}

// AddLinked records a newly linked sub-wallet on the live session.
func (s *Session) AddLinked(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linked[utils.CanonicalAddress(addr)] = struct{}{}
}

// RemoveLinked drops a sub-wallet. If it was the active address the session
// falls back to the primary.
func (s *Session) RemoveLinked(addr string) {
	addr = utils.CanonicalAddress(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.linked, addr)
	if s.active == addr {
		s.active = s.primary
	}
}

// BeginSwitch marks a switch attempt in flight. Fails with AlreadySwitching
// when one is: at most one switch per session.
func (s *Session) BeginSwitch(target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.switching.InProgress {
		return wrapErrors.Newf(wrapErrors.CodeAlreadySwitching, "begin switch",
			"switch to %s already in flight", s.switching.Target)
	}
	s.switching = SwitchingState{InProgress: true, Target: utils.CanonicalAddress(target)}
	return nil
}

// CommitSwitch atomically moves the active address to target and clears the
// in-flight marker. No observer can see a half-updated address.
func (s *Session) CommitSwitch(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = utils.CanonicalAddress(target)
	s.switching = SwitchingState{}
}

// AbortSwitch clears the in-flight marker without touching the active
// address. Always reached on failure paths so the UI is never stuck.
func (s *Session) AbortSwitch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switching = SwitchingState{}
}

func (s *Session) ActiveAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) PrimaryAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	linked := make([]string, 0, len(s.linked))
	for a := range s.linked {
		linked = append(linked, a)
	}
	return SessionSnapshot{
		Connected:       s.connected,
		PrimaryAddress:  s.primary,
		ActiveAddress:   s.active,
		LinkedAddresses: linked,
		Switching:       s.switching,
	}
}
