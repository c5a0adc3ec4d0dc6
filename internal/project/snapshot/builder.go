package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/apierr"
	"github.com/agenthub/hub/internal/platform/config"
	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/agenthub/hub/internal/platform/metrics"
	"github.com/agenthub/hub/internal/platform/procrunner"
	"github.com/agenthub/hub/internal/store"
	"go.uber.org/zap"
)

// ImageInspector is the subset of containerrt.Inspector the builder needs,
// narrowed to an interface so tests can substitute a fake image store.
type ImageInspector interface {
	Exists(ctx context.Context, tag string) (bool, error)
}

// Builder runs the per-project single-flight snapshot build worker (§4.D).
type Builder struct {
	st          *store.Store
	bus         eventbus.Bus
	inspector   ImageInspector
	agentCLI    string
	projectsDir string
	logsDir     string
	log         *logger.Logger

	mu      sync.Mutex
	running map[string]bool
}

// New constructs a Builder rooted at the configured data directory.
func New(st *store.Store, bus eventbus.Bus, inspector ImageInspector, cfg *config.Config, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Default()
	}
	return &Builder{
		st:          st,
		bus:         bus,
		inspector:   inspector,
		agentCLI:    cfg.Agent.CLIPath,
		projectsDir: filepath.Join(cfg.Data.Dir, "projects"),
		logsDir:     filepath.Join(cfg.Data.Dir, "logs"),
		log:         log,
		running:     make(map[string]bool),
	}
}

// LogPath returns the build log file path for a project, used by the facade
// to serve GET /api/projects/:id/build-logs.
func (b *Builder) LogPath(projectID string) string {
	return filepath.Join(b.logsDir, fmt.Sprintf("project-%s.log", projectID))
}

// Trigger starts a worker for projectID unless one is already running; a
// running worker re-reads status after each attempt so concurrent Trigger
// calls coalesce into at most one follow-up build (§4.D).
func (b *Builder) Trigger(projectID string) {
	b.mu.Lock()
	if b.running[projectID] {
		b.mu.Unlock()
		return
	}
	b.running[projectID] = true
	b.mu.Unlock()

	go b.workerLoop(projectID)
}

func (b *Builder) workerLoop(projectID string) {
	defer func() {
		b.mu.Lock()
		delete(b.running, projectID)
		b.mu.Unlock()
	}()

	for {
		status, ok := b.readStatus(projectID)
		if !ok || (status != store.BuildPending && status != store.BuildBuilding) {
			return
		}

		b.attempt(projectID)

		status, ok = b.readStatus(projectID)
		if !ok || status != store.BuildPending {
			return
		}
	}
}

func (b *Builder) readStatus(projectID string) (store.BuildStatus, bool) {
	var status store.BuildStatus
	var ok bool
	b.st.View(func(doc *store.Document) {
		if p, found := doc.Projects[projectID]; found {
			status, ok = p.BuildStatus, true
		}
	})
	return status, ok
}

func (b *Builder) snapshotProject(projectID string) (*store.Project, bool) {
	var p store.Project
	var ok bool
	b.st.View(func(doc *store.Document) {
		if found, present := doc.Projects[projectID]; present {
			p, ok = *found, true
		}
	})
	if !ok {
		return nil, false
	}
	return &p, true
}

// attempt performs exactly one build attempt for projectID (§4.D).
func (b *Builder) attempt(projectID string) {
	ctx := context.Background()

	project, ok := b.snapshotProject(projectID)
	if !ok {
		return
	}

	logPath := filepath.Join(b.logsDir, fmt.Sprintf("project-%s.log", projectID))
	if err := os.MkdirAll(b.logsDir, 0o755); err != nil {
		b.log.Error("create logs dir failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		b.log.Error("truncate build log failed", zap.Error(err))
	}

	startedAt := time.Now().UTC()
	_ = b.st.Mutate("project_build_started", func(doc *store.Document) error {
		p, found := doc.Projects[projectID]
		if !found {
			return apierr.NotFound("project %s not found", projectID)
		}
		p.BuildStatus = store.BuildBuilding
		p.BuildStartedAt = startedAt
		p.BuildError = ""
		p.UpdatedAt = startedAt
		return nil
	})
	b.emitBuildLog(projectID, "", true)

	metrics.BuildsStartedTotal.WithLabelValues(projectID).Inc()
	metrics.BuildsInflight.Inc()
	defer metrics.BuildsInflight.Dec()

	tag, buildErr := Tag(project)
	if buildErr == nil {
		buildErr = b.runBuild(ctx, project, tag, logPath)
	}

	finishedAt := time.Now().UTC()
	if buildErr != nil {
		metrics.BuildsFailedTotal.WithLabelValues(projectID).Inc()
		_ = b.st.Mutate("project_build_failed", func(doc *store.Document) error {
			p, found := doc.Projects[projectID]
			if !found {
				return apierr.NotFound("project %s not found", projectID)
			}
			if p.BuildStatus == store.BuildPending {
				// re-edited during this attempt; workerLoop builds again
				return nil
			}
			p.BuildStatus = store.BuildFailed
			p.BuildError = buildErr.Error()
			p.BuildFinishedAt = finishedAt
			p.UpdatedAt = finishedAt
			return nil
		})
		return
	}

	_ = b.st.Mutate("project_build_ready", func(doc *store.Document) error {
		p, found := doc.Projects[projectID]
		if !found {
			return apierr.NotFound("project %s not found", projectID)
		}
		if p.BuildStatus == store.BuildPending {
			// re-edited during this attempt; workerLoop builds again
			return nil
		}
		p.SetupSnapshotImg = tag
		p.BuildStatus = store.BuildReady
		p.BuildFinishedAt = finishedAt
		p.UpdatedAt = finishedAt
		return nil
	})
}

func (b *Builder) runBuild(ctx context.Context, project *store.Project, tag, logPath string) error {
	if b.inspector != nil {
		exists, err := b.inspector.Exists(ctx, tag)
		if err == nil && exists {
			b.appendAndEmitLog(project.ID, logPath, fmt.Sprintf("Using cached setup snapshot image %q", tag))
			metrics.BuildsCacheHitTotal.WithLabelValues(project.ID).Inc()
			return nil
		}
	}

	workspace := filepath.Join(b.projectsDir, project.ID)
	branch, err := EnsureClone(ctx, workspace, project.RepoURL, project.DefaultBranch)
	if err != nil {
		return fmt.Errorf("prepare workspace: %w", err)
	}

	baseImage, err := resolveBaseImage(project.BaseImage, workspace)
	if err != nil {
		return err
	}

	args := []string{
		"--prepare-snapshot-only",
		"--snapshot-image-tag", tag,
		"--base-image", baseImage,
		"--branch", branch,
	}
	for _, m := range project.DefaultROMounts {
		args = append(args, "--ro-mount", m.HostPath+":"+m.ContainerPath)
	}
	for _, m := range project.DefaultRWMounts {
		args = append(args, "--rw-mount", m.HostPath+":"+m.ContainerPath)
	}
	for _, e := range project.DefaultEnvVars {
		if e.Key == store.ReservedEnvKey {
			continue
		}
		args = append(args, "--env", e.Key+"="+e.Value)
	}
	args = append(args, "--setup-script", project.SetupScript)

	result := procrunner.Run(ctx, b.agentCLI, args, workspace, nil, func(line string) {
		b.appendAndEmitLog(project.ID, logPath, line)
	})
	if result.Err != nil {
		return fmt.Errorf("agent_cli prepare-snapshot failed: %w", result.Err)
	}
	return nil
}

// resolveBaseImage passes a tag-mode reference through unchanged; a
// repo_path reference must resolve to a path inside the checkout (§4.D).
func resolveBaseImage(ref store.BaseImageRef, workspace string) (string, error) {
	if ref.Mode == store.BaseImageTag {
		return ref.Value, nil
	}
	resolved := filepath.Join(workspace, ref.Value)
	cleanWorkspace := filepath.Clean(workspace) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(resolved)+string(os.PathSeparator), cleanWorkspace) {
		return "", apierr.InvalidRequest("base image repo_path escapes the project workspace")
	}
	return resolved, nil
}

func (b *Builder) appendAndEmitLog(projectID, logPath, line string) {
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		_, _ = f.WriteString(line + "\n")
		_ = f.Close()
	}
	b.emitBuildLog(projectID, line, false)
}

func (b *Builder) emitBuildLog(projectID, text string, replace bool) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(&eventbus.Event{
		Type: eventbus.TypeProjectBuildLog,
		Payload: map[string]any{
			"project_id": projectID,
			"text":       text,
			"replace":    replace,
		},
	})
}
