package facade

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/agenthub/hub/internal/platform/apierr"
	"github.com/agenthub/hub/internal/store"
)

func (f *Facade) registerProjectRoutes(api *gin.RouterGroup) {
	projects := api.Group("/projects")
	projects.GET("", f.handleListProjects)
	projects.POST("", f.handleCreateProject)
	projects.GET("/:id", f.handleGetProject)
	projects.PATCH("/:id", f.handleUpdateProject)
	projects.DELETE("/:id", f.handleDeleteProject)
	projects.GET("/:id/build-logs", f.handleProjectBuildLogs)
	projects.POST("/:id/chats", f.handleStartChatFromProject)
	projects.GET("/:id/export", f.handleExportProject)
}

func (f *Facade) handleListProjects(c *gin.Context) {
	projects := []*store.Project{}
	f.st.View(func(doc *store.Document) {
		for _, p := range doc.Projects {
			projects = append(projects, p)
		}
	})
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

type createProjectRequest struct {
	Name            string          `json:"name"`
	RepoURL         string          `json:"repo_url"`
	DefaultBranch   string          `json:"default_branch"`
	SetupScript     string          `json:"setup_script"`
	BaseImage       store.BaseImageRef `json:"base_image"`
	DefaultROMounts []store.Mount   `json:"default_ro_mounts"`
	DefaultRWMounts []store.Mount   `json:"default_rw_mounts"`
	DefaultEnvVars  []store.EnvVar  `json:"default_env_vars"`
	CredentialMode  store.CredentialMode `json:"credential_mode"`
	CredentialIDs   []string        `json:"credential_ids"`
}

func (f *Facade) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}
	if req.Name == "" || req.RepoURL == "" {
		writeErr(c, apierr.InvalidRequest("name and repo_url are required"))
		return
	}

	now := time.Now().UTC()
	project := &store.Project{
		ID:              uuid.New().String(),
		Name:            req.Name,
		RepoURL:         req.RepoURL,
		DefaultBranch:   req.DefaultBranch,
		SetupScript:     req.SetupScript,
		BaseImage:       req.BaseImage,
		DefaultROMounts: req.DefaultROMounts,
		DefaultRWMounts: req.DefaultRWMounts,
		DefaultEnvVars:  req.DefaultEnvVars,
		BuildStatus:     store.BuildPending,
		CredentialMode:  req.CredentialMode,
		CredentialIDs:   req.CredentialIDs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if project.CredentialMode == "" {
		project.CredentialMode = store.CredentialAuto
	}

	err := f.st.Mutate("project_created", func(doc *store.Document) error {
		doc.Projects[project.ID] = project
		return nil
	})
	if err != nil {
		writeErr(c, err)
		return
	}

	if f.builder != nil {
		f.builder.Trigger(project.ID)
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (f *Facade) handleGetProject(c *gin.Context) {
	id := c.Param("id")
	var project *store.Project
	f.st.View(func(doc *store.Document) { project = doc.Projects[id] })
	if project == nil {
		writeErr(c, apierr.NotFound("project %s not found", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

type updateProjectRequest struct {
	Name            *string              `json:"name"`
	DefaultBranch   *string              `json:"default_branch"`
	SetupScript     *string              `json:"setup_script"`
	BaseImage       *store.BaseImageRef  `json:"base_image"`
	DefaultROMounts *[]store.Mount       `json:"default_ro_mounts"`
	DefaultRWMounts *[]store.Mount       `json:"default_rw_mounts"`
	DefaultEnvVars  *[]store.EnvVar      `json:"default_env_vars"`
	CredentialMode  *store.CredentialMode `json:"credential_mode"`
	CredentialIDs   *[]string            `json:"credential_ids"`
}

func (f *Facade) handleUpdateProject(c *gin.Context) {
	id := c.Param("id")
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}

	rebuildNeeded := false
	var updated *store.Project
	err := f.st.Mutate("project_updated", func(doc *store.Document) error {
		p, ok := doc.Projects[id]
		if !ok {
			return apierr.NotFound("project %s not found", id)
		}
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.DefaultBranch != nil {
			p.DefaultBranch = *req.DefaultBranch
		}
		if req.SetupScript != nil && *req.SetupScript != p.SetupScript {
			p.SetupScript = *req.SetupScript
			rebuildNeeded = true
		}
		if req.BaseImage != nil && *req.BaseImage != p.BaseImage {
			p.BaseImage = *req.BaseImage
			rebuildNeeded = true
		}
		if req.DefaultROMounts != nil {
			p.DefaultROMounts = *req.DefaultROMounts
			rebuildNeeded = true
		}
		if req.DefaultRWMounts != nil {
			p.DefaultRWMounts = *req.DefaultRWMounts
			rebuildNeeded = true
		}
		if req.DefaultEnvVars != nil {
			p.DefaultEnvVars = *req.DefaultEnvVars
			rebuildNeeded = true
		}
		if req.CredentialMode != nil {
			p.CredentialMode = *req.CredentialMode
		}
		if req.CredentialIDs != nil {
			p.CredentialIDs = *req.CredentialIDs
		}
		if rebuildNeeded {
			p.BuildStatus = store.BuildPending
			p.SetupSnapshotImg = ""
		}
		p.UpdatedAt = time.Now().UTC()
		updated = p
		return nil
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	if rebuildNeeded && f.builder != nil {
		f.builder.Trigger(id)
	}
	c.JSON(http.StatusOK, gin.H{"project": updated})
}

func (f *Facade) handleDeleteProject(c *gin.Context) {
	id := c.Param("id")
	err := f.st.Mutate("project_deleted", func(doc *store.Document) error {
		if _, ok := doc.Projects[id]; !ok {
			return apierr.NotFound("project %s not found", id)
		}
		for chatID, ch := range doc.Chats {
			if ch.ProjectID == id {
				delete(doc.Chats, chatID)
			}
		}
		delete(doc.Projects, id)
		return nil
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (f *Facade) handleProjectBuildLogs(c *gin.Context) {
	id := c.Param("id")
	var exists bool
	f.st.View(func(doc *store.Document) { _, exists = doc.Projects[id] })
	if !exists {
		writeErr(c, apierr.NotFound("project %s not found", id))
		return
	}
	data, err := os.ReadFile(f.builder.LogPath(id))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"log": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": string(data)})
}

type startChatFromProjectRequest struct {
	Name      string          `json:"name"`
	AgentType store.AgentType `json:"agent_type"`
	ROMounts  []store.Mount   `json:"ro_mounts"`
	RWMounts  []store.Mount   `json:"rw_mounts"`
	EnvVars   []store.EnvVar  `json:"env_vars"`
	AgentArgs []string        `json:"agent_args"`
}

func (f *Facade) handleStartChatFromProject(c *gin.Context) {
	projectID := c.Param("id")
	var req startChatFromProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apierr.InvalidRequest("invalid request body: %v", err))
		return
	}

	chat, err := f.lifecyc.Create(projectID, req.Name, req.AgentType, req.ROMounts, req.RWMounts, req.EnvVars, req.AgentArgs)
	if err != nil {
		writeErr(c, err)
		return
	}
	if err := f.lifecyc.Start(c.Request.Context(), chat.ID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

func (f *Facade) handleExportProject(c *gin.Context) {
	id := c.Param("id")
	var project *store.Project
	f.st.View(func(doc *store.Document) { project = doc.Projects[id] })
	if project == nil {
		writeErr(c, apierr.NotFound("project %s not found", id))
		return
	}
	data, err := yaml.Marshal(project)
	if err != nil {
		writeErr(c, apierr.Internal("marshal project export", err))
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+id+".yaml\"")
	c.Data(http.StatusOK, "application/yaml", data)
}
