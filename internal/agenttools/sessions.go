package agenttools

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TempSession is a one-off agent tools session not tied to a persisted
// chat, used while auto-configuring a new project from a scratch container
// (§4.G "Temporary sessions").
type TempSession struct {
	ID           string
	TokenHash    string
	ReadyACKGUID string
	CreatedAt    time.Time
}

// SessionRegistry holds temporary sessions in memory only; it is destroyed
// on process exit along with everything in it (§4.G, §5 "sessions_lock").
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*TempSession
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*TempSession)}
}

// Create mints a new temporary session and returns it along with the raw
// token (the only time the raw value is available).
func (r *SessionRegistry) Create() (session *TempSession, rawToken string) {
	rawToken = uuid.New().String() + uuid.New().String()
	session = &TempSession{
		ID:           uuid.New().String(),
		TokenHash:    HashToken(rawToken),
		ReadyACKGUID: uuid.New().String(),
		CreatedAt:    time.Now().UTC(),
	}
	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()
	return session, rawToken
}

// Get looks up a session by id.
func (r *SessionRegistry) Get(id string) (*TempSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// FindByToken returns the session whose token hash matches the presented
// raw token, used by the router when it cannot yet tell a temp session
// apart from a chat token by id alone.
func (r *SessionRegistry) FindByToken(rawToken string) (*TempSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if TokensMatch(rawToken, s.TokenHash) {
			return s, true
		}
	}
	return nil, false
}

// Destroy removes a session.
func (r *SessionRegistry) Destroy(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
