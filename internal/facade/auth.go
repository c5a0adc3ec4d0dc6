package facade

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agenthub/hub/internal/platform/apierr"
	"github.com/agenthub/hub/internal/store"
)

// registerAuthRoutes mounts the credential vault and OpenAI account login
// endpoints under /api/settings/auth (§4.I, §6).
func (f *Facade) registerAuthRoutes(api *gin.RouterGroup) {
	auth := api.Group("/settings/auth")
	auth.GET("", f.handleAuthStatuses)

	auth.POST("/openai/key", f.handleConnectOpenAIKey)
	auth.DELETE("/openai/key", f.handleDisconnectOpenAIKey)

	auth.POST("/github/ssh-key", f.handleConnectGitHubSSHKey)
	auth.DELETE("/github/ssh-key", f.handleDisconnectGitHubSSHKey)
	auth.POST("/github/known-hosts", f.handleConnectGitHubKnownHosts)
	auth.DELETE("/github/known-hosts", f.handleDisconnectGitHubKnownHosts)

	auth.POST("/openai/account/start", f.handleStartAccountLogin)
	auth.POST("/openai/account/cancel", f.handleCancelAccountLogin)
	auth.GET("/openai/account/callback", f.handleAccountLoginCallback)
	auth.GET("/openai/account", f.handleAccountLoginStatus)
}

func (f *Facade) handleAuthStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"statuses": f.vault.Statuses()})
}

type connectOpenAIKeyRequest struct {
	Key    string `json:"key"`
	Verify bool   `json:"verify"`
}

func (f *Facade) handleConnectOpenAIKey(c *gin.Context) {
	var req connectOpenAIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}
	if err := f.vault.ConnectOpenAIKey(c.Request.Context(), req.Key, req.Verify); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

func (f *Facade) handleDisconnectOpenAIKey(c *gin.Context) {
	if err := f.vault.DisconnectOpenAIKey(); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

type connectSSHKeyRequest struct {
	Key string `json:"key"`
}

func (f *Facade) handleConnectGitHubSSHKey(c *gin.Context) {
	var req connectSSHKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}
	if err := f.vault.ConnectGitHubSSHKey(req.Key); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

func (f *Facade) handleDisconnectGitHubSSHKey(c *gin.Context) {
	if err := f.vault.DisconnectGitHubSSHKey(); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

type connectKnownHostsRequest struct {
	Data string `json:"data"`
}

func (f *Facade) handleConnectGitHubKnownHosts(c *gin.Context) {
	var req connectKnownHostsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}
	if err := f.vault.ConnectGitHubKnownHosts(req.Data); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

func (f *Facade) handleDisconnectGitHubKnownHosts(c *gin.Context) {
	if err := f.vault.DisconnectGitHubKnownHosts(); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

type startAccountLoginRequest struct {
	Method store.LoginMethod `json:"method"`
}

func (f *Facade) handleStartAccountLogin(c *gin.Context) {
	if f.login == nil {
		writeErr(c, apierr.Internal("account login is not configured", nil))
		return
	}
	var req startAccountLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}
	if req.Method == "" {
		req.Method = store.LoginBrowserCallback
	}
	session, err := f.login.Start(req.Method)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (f *Facade) handleCancelAccountLogin(c *gin.Context) {
	if f.login == nil {
		writeErr(c, apierr.Internal("account login is not configured", nil))
		return
	}
	if err := f.login.Cancel(); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// handleAccountLoginCallback proxies the container-exposed OAuth callback
// for the browser login flow (§4.I "OAuth callback proxy").
func (f *Facade) handleAccountLoginCallback(c *gin.Context) {
	if f.login == nil {
		writeErr(c, apierr.Internal("account login is not configured", nil))
		return
	}
	query := map[string]string{}
	for k := range c.Request.URL.Query() {
		query[k] = c.Query(k)
	}
	if err := f.login.HandleCallback(query); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (f *Facade) handleAccountLoginStatus(c *gin.Context) {
	if f.login == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	session, ok := f.login.Current()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}
