// Package facade implements the HTTP/WebSocket Facade (§4.I): the one
// surface the frontend and any external client talks to. Every other
// package is wired together here into REST routes, two websocket streams,
// and the static frontend bundle.
package facade

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agenthub/hub/internal/agenttools"
	"github.com/agenthub/hub/internal/chat/lifecycle"
	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/agenthub/hub/internal/platform/metrics"
	"github.com/agenthub/hub/internal/project/snapshot"
	"github.com/agenthub/hub/internal/secrets"
	"github.com/agenthub/hub/internal/store"
	"github.com/agenthub/hub/internal/title"
)

// Facade holds every dependency a route handler needs.
type Facade struct {
	st       *store.Store
	bus      eventbus.Bus
	vault    *secrets.Vault
	builder  *snapshot.Builder
	lifecyc  *lifecycle.Manager
	titles   *title.Pipeline
	tools    *agenttools.Router
	sessions *agenttools.SessionRegistry
	login    LoginSession
	static   http.Handler
	log      *logger.Logger
}

// LoginSession is the narrow surface the facade needs from the OpenAI
// account login flow, kept as an interface so auth.go can be tested without
// spawning a real CLI subprocess.
type LoginSession interface {
	Start(method store.LoginMethod) (*store.OpenAIAccountLoginSession, error)
	Cancel() error
	HandleCallback(query map[string]string) error
	Current() (*store.OpenAIAccountLoginSession, bool)
}

// New constructs a Facade. staticHandler may be nil in tests that don't
// exercise the frontend bundle.
func New(
	st *store.Store,
	bus eventbus.Bus,
	vault *secrets.Vault,
	builder *snapshot.Builder,
	lifecyc *lifecycle.Manager,
	titles *title.Pipeline,
	tools *agenttools.Router,
	sessions *agenttools.SessionRegistry,
	login LoginSession,
	staticHandler http.Handler,
	log *logger.Logger,
) *Facade {
	if log == nil {
		log = logger.Default()
	}
	return &Facade{
		st: st, bus: bus, vault: vault, builder: builder, lifecyc: lifecyc,
		titles: titles, tools: tools, sessions: sessions, login: login,
		static: staticHandler, log: log.With(zap.String("component", "facade")),
	}
}

// Router builds the gin engine with every route mounted. releaseMode should
// be true outside local development.
func (f *Facade) Router(releaseMode bool) *gin.Engine {
	if releaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", f.handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	f.registerProjectRoutes(api)
	f.registerChatRoutes(api)
	f.registerAuthRoutes(api)
	api.GET("/events", f.handleEventsWS)

	if f.tools != nil {
		f.tools.Register(api)
		f.tools.RegisterTempSessions(api)
	}

	if f.static != nil {
		r.NoRoute(func(c *gin.Context) { f.static.ServeHTTP(c.Writer, c.Request) })
	}

	return r
}

func (f *Facade) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
