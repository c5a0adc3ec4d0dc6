package agenttools

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agenthub/hub/internal/platform/apierr"
	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/agenthub/hub/internal/store"
)

// Router owns the gin route group mounted per chat and backs it with the
// store, vault, and temporary session registry.
type Router struct {
	st       *store.Store
	vault    CredentialResolver
	sessions *SessionRegistry
	log      *logger.Logger
}

// CredentialResolver is the minimal vault surface the resolve/list handlers
// need, kept narrow so tests can substitute a fake.
type CredentialResolver interface {
	OpenAIKeyValue() (string, bool)
	SSHKeyValue() (string, bool)
	KnownHostsValue() (string, bool)
}

// New constructs a Router.
func New(st *store.Store, vault CredentialResolver, sessions *SessionRegistry, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Default()
	}
	return &Router{st: st, vault: vault, sessions: sessions, log: log}
}

// Register mounts the per-chat agent tools routes under /api/chats/:id.
func (r *Router) Register(group *gin.RouterGroup) {
	chat := group.Group("/chats/:id")
	chat.Use(r.authMiddleware())
	chat.POST("/artifacts/submit", r.handlePublishArtifact)
	chat.POST("/artifacts/publish", r.handlePublishArtifact)
	chat.POST("/credentials/resolve", r.handleResolveCredential)
	chat.GET("/credentials", r.handleListCredentials)
	chat.POST("/project-binding", r.handleProjectBinding)
	chat.POST("/ack", r.handleAck)
}

// RegisterTempSessions mounts the auto-configure session routes, which use
// the session id instead of a chat id as the path parameter.
func (r *Router) RegisterTempSessions(group *gin.RouterGroup) {
	sess := group.Group("/agent-tool-sessions/:id")
	sess.Use(r.authMiddlewareTempSession())
	sess.POST("/credentials/resolve", r.handleResolveCredential)
	sess.GET("/credentials", r.handleListCredentials)
	sess.POST("/project-binding", r.handleProjectBinding)
	sess.POST("/ack", r.handleAck)
}

const (
	headerAgentToolsToken = "x-agent-hub-agent-tools-token"
	headerArtifactName    = "x-agent-hub-artifact-name"
)

func bearerOrHeaderToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.GetHeader(headerAgentToolsToken)
}

// authMiddleware verifies the per-chat token before any handler runs
// (§4.G auth).
func (r *Router) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID := c.Param("id")
		token := bearerOrHeaderToken(c)

		var storedHash string
		var found bool
		r.st.View(func(doc *store.Document) {
			if ch, ok := doc.Chats[chatID]; ok {
				storedHash, found = ch.ArtifactTokenHash, true
			}
		})
		if !found || !TokensMatch(token, storedHash) {
			writeErr(c, apierr.AuthFailed("invalid or missing agent tools token"))
			return
		}
		c.Next()
	}
}

func (r *Router) authMiddlewareTempSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerOrHeaderToken(c)
		session, ok := r.sessions.FindByToken(token)
		if !ok {
			writeErr(c, apierr.AuthFailed("invalid or missing agent tools token"))
			return
		}
		c.Set("tempSession", session)
		c.Next()
	}
}

func (r *Router) handlePublishArtifact(c *gin.Context) {
	chatID := c.Param("id")
	name := c.GetHeader(headerArtifactName)
	relPath := c.Query("path")
	if relPath == "" {
		relPath = name
	}

	var workspace string
	r.st.View(func(doc *store.Document) {
		if ch, ok := doc.Chats[chatID]; ok {
			workspace = ch.Workspace
		}
	})
	if workspace == "" {
		writeErr(c, apierr.NotFound("chat %s not found", chatID))
		return
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeErr(c, apierr.InvalidRequest("failed to read request body"))
		return
	}

	artifact, err := PublishArtifact(r.st, chatID, workspace, name, relPath, data)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact": artifact})
}

type resolveCredentialRequest struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

func (r *Router) handleResolveCredential(c *gin.Context) {
	var req resolveCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}

	switch req.Category {
	case "openai":
		value, ok := r.vault.OpenAIKeyValue()
		if !ok {
			writeErr(c, apierr.NotFound("no OpenAI credential is connected"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": "openai", "value": value})
	case "github_ssh_key":
		value, ok := r.vault.SSHKeyValue()
		if !ok {
			writeErr(c, apierr.NotFound("no GitHub SSH key is connected"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": "github_ssh_key", "value": value})
	case "github_known_hosts":
		value, ok := r.vault.KnownHostsValue()
		if !ok {
			writeErr(c, apierr.NotFound("no GitHub known_hosts is connected"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": "github_known_hosts", "value": value})
	default:
		writeErr(c, apierr.NotFound("unknown credential category %q", req.Category))
	}
}

func (r *Router) handleListCredentials(c *gin.Context) {
	available := []string{}
	if _, ok := r.vault.OpenAIKeyValue(); ok {
		available = append(available, "openai")
	}
	if _, ok := r.vault.SSHKeyValue(); ok {
		available = append(available, "github_ssh_key")
	}
	if _, ok := r.vault.KnownHostsValue(); ok {
		available = append(available, "github_known_hosts")
	}
	c.JSON(http.StatusOK, gin.H{"available": available})
}

type projectBindingRequest struct {
	ProjectID string `json:"project_id"`
}

func (r *Router) handleProjectBinding(c *gin.Context) {
	var req projectBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}

	var found bool
	r.st.View(func(doc *store.Document) {
		_, found = doc.Projects[req.ProjectID]
	})
	if !found {
		writeErr(c, apierr.NotFound("project %s not found", req.ProjectID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"bound": true, "project_id": req.ProjectID})
}

type ackRequest struct {
	GUID  string         `json:"guid"`
	Stage string         `json:"stage"`
	Meta  map[string]any `json:"meta"`
}

func (r *Router) handleAck(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}

	if v, ok := c.Get("tempSession"); ok {
		if session, _ := v.(*TempSession); session == nil || session.ReadyACKGUID != req.GUID {
			writeErr(c, apierr.AuthFailed("readiness ack guid does not match"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"acknowledged": true})
		return
	}

	chatID := c.Param("id")
	if chatID == "" {
		c.JSON(http.StatusOK, gin.H{"acknowledged": true})
		return
	}

	now := time.Now().UTC()
	err := r.st.Mutate("chat_ready_ack", func(doc *store.Document) error {
		ch, ok := doc.Chats[chatID]
		if !ok {
			return apierr.NotFound("chat %s not found", chatID)
		}
		if ch.ReadyACKGUID != req.GUID {
			return apierr.AuthFailed("readiness ack guid does not match")
		}
		ch.ReadyStage = req.Stage
		ch.ReadyAt = now
		ch.ReadyMeta = req.Meta
		return nil
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func writeErr(c *gin.Context, err error) {
	status, kind, message := apierr.StatusMessage(err)
	c.AbortWithStatusJSON(status, gin.H{"kind": kind, "message": message})
}
