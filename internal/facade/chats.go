package facade

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/agenthub/hub/internal/agenttools"
	"github.com/agenthub/hub/internal/platform/apierr"
	"github.com/agenthub/hub/internal/store"
)

func (f *Facade) registerChatRoutes(api *gin.RouterGroup) {
	chats := api.Group("/chats")
	chats.GET("", f.handleListChats)
	chats.GET("/:id", f.handleGetChat)
	chats.DELETE("/:id", f.handleDeleteChat)
	chats.POST("/:id/start", f.handleStartChat)
	chats.POST("/:id/close", f.handleCloseChat)
	chats.GET("/:id/logs", f.handleChatLogs)
	chats.GET("/:id/artifacts", f.handleListArtifacts)
	chats.GET("/:id/artifacts/:aid/download", f.handleDownloadArtifact)
	chats.GET("/:id/title-prompt", f.handleGetTitle)
	chats.POST("/:id/title-prompt/regenerate", f.handleRegenerateTitle)
	chats.GET("/:id/export", f.handleExportChat)

	terminal := api.Group("/chats/:id/terminal")
	terminal.GET("", f.handleTerminalWS)
}

func (f *Facade) handleListChats(c *gin.Context) {
	projectID := c.Query("project_id")
	chats := []*store.Chat{}
	f.st.View(func(doc *store.Document) {
		for _, ch := range doc.Chats {
			if projectID != "" && ch.ProjectID != projectID {
				continue
			}
			chats = append(chats, ch)
		}
	})
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (f *Facade) handleGetChat(c *gin.Context) {
	id := c.Param("id")
	var chat *store.Chat
	f.st.View(func(doc *store.Document) { chat = doc.Chats[id] })
	if chat == nil {
		writeErr(c, apierr.NotFound("chat %s not found", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

func (f *Facade) handleDeleteChat(c *gin.Context) {
	id := c.Param("id")
	if f.lifecyc.IsRunning(id) {
		if err := f.lifecyc.Close(id); err != nil {
			writeErr(c, err)
			return
		}
	}
	err := f.st.Mutate("chat_deleted", func(doc *store.Document) error {
		if _, ok := doc.Chats[id]; !ok {
			return apierr.NotFound("chat %s not found", id)
		}
		delete(doc.Chats, id)
		return nil
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (f *Facade) handleStartChat(c *gin.Context) {
	id := c.Param("id")
	if err := f.lifecyc.Start(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": true})
}

func (f *Facade) handleCloseChat(c *gin.Context) {
	id := c.Param("id")
	if err := f.lifecyc.Close(id); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func (f *Facade) handleChatLogs(c *gin.Context) {
	id := c.Param("id")
	var exists bool
	f.st.View(func(doc *store.Document) { _, exists = doc.Chats[id] })
	if !exists {
		writeErr(c, apierr.NotFound("chat %s not found", id))
		return
	}
	data, err := os.ReadFile(f.lifecyc.LogPath(id))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"log": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": string(data)})
}

func (f *Facade) handleListArtifacts(c *gin.Context) {
	id := c.Param("id")
	var chat *store.Chat
	f.st.View(func(doc *store.Document) { chat = doc.Chats[id] })
	if chat == nil {
		writeErr(c, apierr.NotFound("chat %s not found", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"artifacts":               chat.Artifacts,
		"current_artifact_ids":    chat.CurrentArtifactIDs,
		"artifact_prompt_history": chat.ArtifactPromptHistory,
	})
}

func (f *Facade) handleDownloadArtifact(c *gin.Context) {
	id := c.Param("id")
	artifactID := c.Param("aid")

	var chat *store.Chat
	f.st.View(func(doc *store.Document) { chat = doc.Chats[id] })
	if chat == nil {
		writeErr(c, apierr.NotFound("chat %s not found", id))
		return
	}

	var found *store.Artifact
	for i := range chat.Artifacts {
		if chat.Artifacts[i].ID == artifactID {
			found = &chat.Artifacts[i]
			break
		}
	}
	if found == nil {
		writeErr(c, apierr.NotFound("artifact %s not found", artifactID))
		return
	}

	path := filepath.Join(chat.Workspace, found.RelPath)
	c.FileAttachment(path, found.Name)
}

func (f *Facade) handleGetTitle(c *gin.Context) {
	id := c.Param("id")
	var chat *store.Chat
	f.st.View(func(doc *store.Document) { chat = doc.Chats[id] })
	if chat == nil {
		writeErr(c, apierr.NotFound("chat %s not found", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"title":  chat.TitleCached,
		"status": chat.TitleStatus,
		"error":  chat.TitleError,
		"source": chat.TitleSource,
	})
}

func (f *Facade) handleRegenerateTitle(c *gin.Context) {
	id := c.Param("id")
	if err := f.titles.Regenerate(id); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"regenerating": true})
}

func (f *Facade) handleExportChat(c *gin.Context) {
	id := c.Param("id")
	var chat *store.Chat
	f.st.View(func(doc *store.Document) { chat = doc.Chats[id] })
	if chat == nil {
		writeErr(c, apierr.NotFound("chat %s not found", id))
		return
	}
	data, err := yaml.Marshal(chat)
	if err != nil {
		writeErr(c, apierr.Internal("marshal chat export", err))
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+id+".yaml\"")
	c.Data(http.StatusOK, "application/yaml", data)
}

// archiveAndRecordPrompt is called by the terminal websocket handler once a
// prompt submission is detected by the PTY input normalizer (§4.F -> §4.G,
// §4.H).
func (f *Facade) archiveAndRecordPrompt(chatID, prompt string) {
	if err := agenttools.ArchiveCurrentArtifacts(f.st, chatID, prompt); err != nil {
		f.log.WithError(err).Warn("failed to archive artifact prompt group")
	}
	if err := f.titles.RecordPrompt(chatID, prompt); err != nil {
		f.log.WithError(err).Warn("failed to record title prompt")
	}
}
