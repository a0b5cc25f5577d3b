// Package session tracks signed-in sessions and locks them after inactivity.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/autolock"
	"github.com/MarcoPoloResearchLab/photovault/internal/realtime"
	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	"go.uber.org/zap"
)

const (
	// LockedMessage is shown to a client whose session has auto-locked.
	LockedMessage = "Vault Locked. Your memories rest safely in the shadows. Please refresh the page to return to the vault."

	defaultLockedRetention = 24 * time.Hour
)

var (
	ErrUnknownSession = errors.New("session: unknown session")
	ErrSessionLocked  = errors.New("session: locked after inactivity")
	ErrSignedOut      = errors.New("session: signed out")

	errMissingAccount = errors.New("session: account id required")
)

// State is the lifecycle position of a session.
type State string

const (
	StateActive    State = "active"
	StateLocked    State = "locked"
	StateSignedOut State = "signed_out"
)

// Owner describes who a session belongs to.
type Owner struct {
	AccountID   string
	Email       string
	DisplayName string
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID           string
	Owner        Owner
	State        State
	StartedAt    time.Time
	LastActivity time.Time
	Remaining    time.Duration
	LockedAt     time.Time
}

// Locked reports whether the session is locked.
func (s Snapshot) Locked() bool {
	return s.State == StateLocked
}

// RegistryConfig describes the dependencies of a Registry.
type RegistryConfig struct {
	Window          time.Duration
	Clock           autolock.Clock
	IDProvider      vault.IDProvider
	Publisher       realtime.Publisher
	LockedRetention time.Duration
	Logger          *zap.Logger
}

type entry struct {
	id        string
	owner     Owner
	startedAt time.Time
	timer     *autolock.Timer
	state     State
	lockedAt  time.Time
}

// Registry owns one auto-lock timer per live session.
type Registry struct {
	mu              sync.Mutex
	sessions        map[string]*entry
	window          time.Duration
	clock           autolock.Clock
	idProvider      vault.IDProvider
	publisher       realtime.Publisher
	lockedRetention time.Duration
	logger          *zap.Logger
}

func NewRegistry(cfg RegistryConfig) *Registry {
	window := cfg.Window
	if window <= 0 {
		window = autolock.DefaultWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = autolock.SystemClock()
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = vault.NewUUIDProvider()
	}
	retention := cfg.LockedRetention
	if retention <= 0 {
		retention = defaultLockedRetention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions:        make(map[string]*entry),
		window:          window,
		clock:           clock,
		idProvider:      idProvider,
		publisher:       cfg.Publisher,
		lockedRetention: retention,
		logger:          logger,
	}
}

// Window returns the inactivity window applied to new sessions.
func (r *Registry) Window() time.Duration {
	return r.window
}

// Start creates a session for owner and arms its auto-lock timer.
func (r *Registry) Start(owner Owner) (Snapshot, error) {
	if strings.TrimSpace(owner.AccountID) == "" {
		return Snapshot{}, errMissingAccount
	}
	id, err := r.idProvider.NewID()
	if err != nil {
		return Snapshot{}, err
	}
	session := &entry{
		id:        id,
		owner:     owner,
		startedAt: r.clock.Now().UTC(),
		state:     StateActive,
	}
	session.timer = autolock.New(autolock.Config{
		Window: r.window,
		Clock:  r.clock,
		OnLock: func() { r.lock(id) },
	})

	r.mu.Lock()
	r.pruneLocked()
	r.sessions[id] = session
	r.mu.Unlock()

	session.timer.Start()
	r.logger.Info("session started",
		zap.String("session_id", id),
		zap.String("account_id", owner.AccountID))
	return r.snapshot(session), nil
}

// Lookup returns the session only when it is active.
func (r *Registry) Lookup(id string) (Snapshot, error) {
	session, err := r.find(id)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot := r.snapshot(session)
	switch snapshot.State {
	case StateLocked:
		return snapshot, ErrSessionLocked
	case StateSignedOut:
		return snapshot, ErrSignedOut
	}
	return snapshot, nil
}

// Status returns the session regardless of state.
func (r *Registry) Status(id string) (Snapshot, error) {
	session, err := r.find(id)
	if err != nil {
		return Snapshot{}, err
	}
	return r.snapshot(session), nil
}

// Touch records qualifying activity. Locked sessions stay locked.
func (r *Registry) Touch(id string) (Snapshot, error) {
	session, err := r.find(id)
	if err != nil {
		return Snapshot{}, err
	}
	if !session.timer.Touch() {
		snapshot := r.snapshot(session)
		if snapshot.State == StateLocked {
			return snapshot, ErrSessionLocked
		}
		return snapshot, ErrSignedOut
	}
	return r.snapshot(session), nil
}

// Lock forces the lock transition, as if the inactivity window had elapsed.
func (r *Registry) Lock(id string) error {
	session, err := r.find(id)
	if err != nil {
		return err
	}
	session.timer.Lock()
	return nil
}

// SignOut ends the session. Signing out a locked session releases it.
func (r *Registry) SignOut(id string) error {
	r.mu.Lock()
	session, ok := r.sessions[strings.TrimSpace(id)]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownSession
	}
	delete(r.sessions, session.id)
	wasActive := session.state == StateActive
	session.state = StateSignedOut
	r.mu.Unlock()

	session.timer.Stop()
	if wasActive {
		r.publish(session, realtime.EventSessionEnded)
	}
	r.logger.Info("session signed out",
		zap.String("session_id", session.id),
		zap.String("account_id", session.owner.AccountID))
	return nil
}

// Close stops every timer without locking. Used on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*entry, 0, len(r.sessions))
	for id, session := range r.sessions {
		sessions = append(sessions, session)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, session := range sessions {
		session.timer.Stop()
	}
}

// Len reports the number of tracked sessions, locked ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) lock(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if !ok || session.state != StateActive {
		r.mu.Unlock()
		return
	}
	session.state = StateLocked
	session.lockedAt = r.clock.Now().UTC()
	r.mu.Unlock()

	r.logger.Info("session locked after inactivity",
		zap.String("session_id", id),
		zap.String("account_id", session.owner.AccountID),
		zap.Duration("window", r.window))
	r.publish(session, realtime.EventSessionLocked)
}

func (r *Registry) publish(session *entry, eventType string) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(realtime.Message{
		UserID:    session.owner.AccountID,
		SessionID: session.id,
		EventType: eventType,
		Timestamp: r.clock.Now().UTC(),
	})
}

func (r *Registry) find(id string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrUnknownSession
	}
	return session, nil
}

// pruneLocked expects r.mu held.
func (r *Registry) pruneLocked() {
	cutoff := r.clock.Now().UTC().Add(-r.lockedRetention)
	for id, session := range r.sessions {
		if session.state == StateLocked && session.lockedAt.Before(cutoff) {
			delete(r.sessions, id)
		}
	}
}

func (r *Registry) snapshot(session *entry) Snapshot {
	status := session.timer.Status()
	r.mu.Lock()
	state := session.state
	lockedAt := session.lockedAt
	r.mu.Unlock()
	if state == StateActive && status.Locked {
		state = StateLocked
	}
	return Snapshot{
		ID:           session.id,
		Owner:        session.owner,
		State:        state,
		StartedAt:    session.startedAt,
		LastActivity: status.LastActivity,
		Remaining:    status.Remaining,
		LockedAt:     lockedAt,
	}
}
