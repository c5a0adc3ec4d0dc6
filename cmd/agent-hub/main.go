package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agenthub/hub/internal/accountlogin"
	"github.com/agenthub/hub/internal/agent/registry"
	"github.com/agenthub/hub/internal/agenttools"
	"github.com/agenthub/hub/internal/chat/lifecycle"
	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/facade"
	"github.com/agenthub/hub/internal/platform/config"
	"github.com/agenthub/hub/internal/platform/containerrt"
	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/agenthub/hub/internal/project/snapshot"
	"github.com/agenthub/hub/internal/secrets"
	"github.com/agenthub/hub/internal/store"
	"github.com/agenthub/hub/internal/title"
)

// run wires every leaf dependency and blocks until a shutdown signal
// arrives, mirroring the teacher's cmd/agent-manager composition root.
func run() error {
	// 1. Load configuration.
	cfg, err := config.Load(flags.dataDir, flags.configFile, flags.host, flags.port, flags.logLevel, flags.cleanStart, flags.noFrontendBuild)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// 2. Initialize logger.
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting agent hub", zap.String("data_dir", cfg.Data.Dir))

	// 3. Root cancellation context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Event bus: NATS when configured, in-memory otherwise.
	var bus eventbus.Bus
	if cfg.NATS.URL != "" {
		natsBus, err := eventbus.NewNATSBus(cfg.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("connect nats event bus: %w", err)
		}
		bus = natsBus
		log.Info("connected to nats event bus", zap.String("url", cfg.NATS.URL))
	} else {
		bus = eventbus.NewMemoryBus(log)
	}
	defer bus.Close()

	// 5. Image inspector (Docker daemon).
	inspector, err := containerrt.New(cfg.Docker, log)
	if err != nil {
		return fmt.Errorf("initialize image inspector: %w", err)
	}
	defer inspector.Close()
	if err := inspector.Ping(ctx); err != nil {
		return fmt.Errorf("connect to docker daemon: %w", err)
	}
	log.Info("connected to docker daemon")

	// 6. Agent registry.
	reg := registry.New()

	// 7. Credential vault.
	vault, err := secrets.New(cfg.Data.Dir, bus, log)
	if err != nil {
		return fmt.Errorf("initialize credential vault: %w", err)
	}

	// 8. Document store.
	st, err := store.Open(cfg.Data.Dir, bus, log)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	// 9. Snapshot builder.
	builder := snapshot.New(st, bus, inspector, cfg, log)

	// 10. Chat lifecycle supervisor + reconciliation sweeper.
	hubBaseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	lifecyc := lifecycle.New(st, bus, vault, inspector, reg, cfg, hubBaseURL, log)
	sweeper := lifecycle.NewSweeper(lifecyc)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start reconciliation sweeper: %w", err)
	}

	if cfg.Data.CleanStart {
		if err := lifecyc.CleanStart(ctx); err != nil {
			log.Error("clean start failed", zap.Error(err))
		}
	}

	// 11. Chat title pipeline.
	titles := title.New(st, bus, vault, cfg.Agent.CLIPath, log)

	// 12. Agent tools router state.
	sessions := agenttools.NewSessionRegistry()
	tools := agenttools.New(st, vault, sessions, log)

	// 13. OpenAI account login session.
	login := accountlogin.New(st, bus, cfg.Agent.CLIPath, log)

	// 14. HTTP/WebSocket facade.
	var staticHandler http.Handler
	if !cfg.Data.NoFrontendBuild {
		staticHandler = facade.NewStaticHandler(filepath.Join(cfg.Data.Dir, "frontend", "dist"))
	}
	fc := facade.New(st, bus, vault, builder, lifecyc, titles, tools, sessions, login, staticHandler, log)
	router := fc.Router(cfg.Logging.Level != "debug")

	// 15. HTTP server.
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// 16. Start listening in the background.
	serveErrs := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrs <- err
		}
	}()

	// 17. Wait for a shutdown signal or a fatal server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down agent hub")
	case err := <-serveErrs:
		log.Error("http server failed", zap.Error(err))
	}

	// 18. Graceful shutdown, reverse dependency order.
	cancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := lifecyc.Shutdown(shutdownCtx); err != nil {
		log.Error("chat lifecycle shutdown error", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	log.Info("agent hub stopped")
	return nil
}
