package lifecycle

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/agenthub/hub/internal/chat/pty"
	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/agenthub/hub/internal/project/snapshot"
	"github.com/agenthub/hub/internal/store"
)

// SweepSchedule runs the reconciliation pass every 30 seconds.
const SweepSchedule = "@every 30s"

// Sweeper periodically reconciles the store's idea of which chats are
// running against the Manager's actual runtime table and OS process state,
// and re-validates that each ready project's snapshot tag still matches its
// current configuration (§4.E sweeper, §8 S3).
type Sweeper struct {
	m   *Manager
	cr  *cron.Cron
	log *logger.Logger
}

// NewSweeper constructs a Sweeper bound to m. Call Start to begin running.
func NewSweeper(m *Manager) *Sweeper {
	return &Sweeper{
		m:   m,
		cr:  cron.New(),
		log: m.log.With(zap.String("component", "sweeper")),
	}
}

// Start schedules the reconciliation job and begins the cron scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cr.AddFunc(SweepSchedule, s.sweep)
	if err != nil {
		return err
	}
	s.cr.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight run to finish.
func (s *Sweeper) Stop() {
	ctx := s.cr.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	s.reconcileRuntimes()
	s.reconcileSnapshotTags()
}

// reconcileRuntimes marks a chat failed if its recorded PID is no longer
// alive but the store still thinks it is running (e.g. the hub restarted
// mid-session, or the process died without the supervisor observing it).
func (s *Sweeper) reconcileRuntimes() {
	type stale struct {
		id  string
		pid int
	}
	var staleChats []stale

	s.m.st.View(func(doc *store.Document) {
		for id, c := range doc.Chats {
			if c.Status != store.ChatRunning {
				continue
			}
			if s.m.IsRunning(id) {
				continue
			}
			staleChats = append(staleChats, stale{id: id, pid: c.PID})
		}
	})

	for _, c := range staleChats {
		if c.pid > 0 && pty.ProcessAlive(c.pid) {
			continue
		}
		now := time.Now().UTC()
		err := s.m.st.Mutate("sweeper_marked_failed", func(doc *store.Document) error {
			chat, ok := doc.Chats[c.id]
			if !ok {
				return nil
			}
			chat.Status = store.ChatFailed
			chat.PID = 0
			chat.UpdatedAt = now
			return nil
		})
		if err != nil {
			s.log.Warn("sweeper failed to mark chat failed", zap.String("chat_id", c.id), zap.Error(err))
		}
	}
}

// reconcileSnapshotTags clears a project's cached ready image when its
// computed fingerprint has drifted from what was last built, so the next
// chat start refuses until a rebuild runs (§4.D, §8 S3).
func (s *Sweeper) reconcileSnapshotTags() {
	type drifted struct{ id string }
	var driftedProjects []drifted

	s.m.st.View(func(doc *store.Document) {
		for id, p := range doc.Projects {
			if p.BuildStatus != store.BuildReady {
				continue
			}
			expected, err := snapshot.Tag(p)
			if err != nil || expected == p.SetupSnapshotImg {
				continue
			}
			driftedProjects = append(driftedProjects, drifted{id: id})
		}
	})

	for _, d := range driftedProjects {
		now := time.Now().UTC()
		err := s.m.st.Mutate("sweeper_snapshot_drifted", func(doc *store.Document) error {
			p, ok := doc.Projects[d.id]
			if !ok {
				return nil
			}
			p.BuildStatus = store.BuildPending
			p.SetupSnapshotImg = ""
			p.UpdatedAt = now
			return nil
		})
		if err != nil {
			s.log.Warn("sweeper failed to mark project pending", zap.String("project_id", d.id), zap.Error(err))
		}
	}
}
