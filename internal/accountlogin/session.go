// Package accountlogin drives the singleton OpenAI Account Login Session
// (§3, §4.C, §4.I): spawning the external agent CLI's login subcommand,
// tracking its progressive status, and proxying the browser OAuth callback
// into the still-running child process.
package accountlogin

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/apierr"
	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/agenthub/hub/internal/store"
)

// MaxLogTailChars bounds the rolling log tail kept on the session record.
const MaxLogTailChars = 4096

// loginStatusLine is one line of newline-delimited JSON the agent CLI's
// login subcommand emits on stdout as the flow progresses.
type loginStatusLine struct {
	Status            string `json:"status"`
	LoginURL          string `json:"login_url,omitempty"`
	DeviceCode        string `json:"device_code,omitempty"`
	LocalCallbackURL  string `json:"local_callback_url,omitempty"`
	LocalCallbackPort int    `json:"local_callback_port,omitempty"`
	LocalCallbackPath string `json:"local_callback_path,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Session owns the at-most-one-active login child process.
type Session struct {
	st       *store.Store
	bus      eventbus.Bus
	agentCLI string
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New constructs a Session.
func New(st *store.Store, bus eventbus.Bus, agentCLI string, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Default()
	}
	return &Session{st: st, bus: bus, agentCLI: agentCLI, log: log.With(zap.String("component", "account-login"))}
}

// Start cancels any running session and spawns a new one (§3 "starting a
// new session with a different method cancels the old one").
func (s *Session) Start(method store.LoginMethod) (*store.OpenAIAccountLoginSession, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	session := &store.OpenAIAccountLoginSession{
		ID:        uuid.New().String(),
		Method:    method,
		Status:    store.LoginStarting,
		StartedAt: time.Now().UTC(),
	}

	err := s.st.Mutate("login_session_started", func(doc *store.Document) error {
		doc.LoginSession = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	go s.run(ctx, session.ID, method)
	return session, nil
}

// Cancel signals the running login child and marks the session cancelled.
func (s *Session) Cancel() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return s.st.Mutate("login_session_cancelled", func(doc *store.Document) error {
		if doc.LoginSession == nil {
			return nil
		}
		doc.LoginSession.Status = store.LoginCancelled
		doc.LoginSession.CompletedAt = time.Now().UTC()
		return nil
	})
}

// Current returns the active or most recently completed session.
func (s *Session) Current() (*store.OpenAIAccountLoginSession, bool) {
	var session *store.OpenAIAccountLoginSession
	s.st.View(func(doc *store.Document) { session = doc.LoginSession })
	return session, session != nil
}

// HandleCallback forwards the browser's OAuth redirect query to the
// running login child's locally exposed callback port (§4.I "OAuth
// callback proxy").
func (s *Session) HandleCallback(query map[string]string) error {
	var target string
	s.st.View(func(doc *store.Document) {
		if doc.LoginSession != nil {
			target = doc.LoginSession.LocalCallbackURL
		}
	})
	if target == "" {
		return apierr.Conflict("no active login session is waiting for a callback")
	}

	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return apierr.Internal("build callback proxy request", err)
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apierr.Upstream("forward OAuth callback to login container", err)
	}
	defer resp.Body.Close()

	return s.st.Mutate("login_session_callback_received", func(doc *store.Document) error {
		if doc.LoginSession == nil {
			return nil
		}
		doc.LoginSession.Status = store.LoginCallbackReceived
		return nil
	})
}

func (s *Session) run(ctx context.Context, sessionID string, method store.LoginMethod) {
	cmd := exec.CommandContext(ctx, s.agentCLI, "login", "--method", string(method), "--json")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.fail(sessionID, "start login subprocess: "+err.Error())
		return
	}
	if err := cmd.Start(); err != nil {
		s.fail(sessionID, "start login subprocess: "+err.Error())
		return
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		s.applyStatusLine(sessionID, scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == nil {
			s.fail(sessionID, "login subprocess exited with error: "+err.Error())
		}
		return
	}
}

func (s *Session) applyStatusLine(sessionID, line string) {
	var parsed loginStatusLine
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		s.appendLogTail(sessionID, line)
		return
	}

	err := s.st.Mutate("login_session_status", func(doc *store.Document) error {
		session := doc.LoginSession
		if session == nil || session.ID != sessionID {
			return nil
		}
		if parsed.Status != "" {
			session.Status = store.LoginStatus(parsed.Status)
		}
		if parsed.LoginURL != "" {
			session.LoginURL = parsed.LoginURL
		}
		if parsed.DeviceCode != "" {
			session.DeviceCode = parsed.DeviceCode
		}
		if parsed.LocalCallbackURL != "" {
			session.LocalCallbackURL = parsed.LocalCallbackURL
		}
		if parsed.LocalCallbackPort != 0 {
			session.LocalCallbackPort = parsed.LocalCallbackPort
		}
		if parsed.LocalCallbackPath != "" {
			session.LocalCallbackPath = parsed.LocalCallbackPath
		}
		if session.Status == store.LoginConnected || session.Status == store.LoginFailed {
			session.CompletedAt = time.Now().UTC()
		}
		if parsed.Message != "" {
			session.LogTail = appendTail(session.LogTail, parsed.Message)
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to apply login status line")
	}
}

func (s *Session) appendLogTail(sessionID, line string) {
	_ = s.st.Mutate("login_session_log", func(doc *store.Document) error {
		session := doc.LoginSession
		if session == nil || session.ID != sessionID {
			return nil
		}
		session.LogTail = appendTail(session.LogTail, line)
		return nil
	})
}

func (s *Session) fail(sessionID, message string) {
	_ = s.st.Mutate("login_session_failed", func(doc *store.Document) error {
		session := doc.LoginSession
		if session == nil || session.ID != sessionID || session.Status == store.LoginCancelled {
			return nil
		}
		session.Status = store.LoginFailed
		session.CompletedAt = time.Now().UTC()
		session.LogTail = appendTail(session.LogTail, message)
		return nil
	})
}

func appendTail(tail, line string) string {
	combined := tail
	if combined != "" {
		combined += "\n"
	}
	combined += strings.TrimSpace(line)
	if len(combined) > MaxLogTailChars {
		combined = combined[len(combined)-MaxLogTailChars:]
	}
	return combined
}
