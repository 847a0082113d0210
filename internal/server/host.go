// Package server wires every component into one running process — the
// Server Host (C11). Grounded on the teacher's cmd/kandev/main.go: gin
// router, http.Server, signal-driven graceful shutdown — generalized from
// main()'s inline wiring into a reusable Host type whose Serve method
// implements spec.md §4.11's exact shutdown ordering.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/agentcore/internal/coreconfig"
	"github.com/kandev/agentcore/internal/coreevents"
	"github.com/kandev/agentcore/internal/corelog"
	"github.com/kandev/agentcore/internal/persistence"
	"github.com/kandev/agentcore/internal/process"
	"github.com/kandev/agentcore/internal/shutdown"
	"github.com/kandev/agentcore/internal/wsgateway"
)

// Host owns every long-lived component for one process: config, logger,
// persistence pool, broadcaster, executor, client registry, WS bridge, and
// the HTTP server multiplexing them.
type Host struct {
	cfg    *coreconfig.Config
	logger *corelog.Logger

	Pool        *persistence.Pool
	Broadcaster coreevents.Broadcaster
	Executor    *process.Executor
	Registry    *wsgateway.Registry
	Bridge      *wsgateway.Bridge
	Shutdown    *shutdown.Coordinator

	httpServer *http.Server
}

// New wires every component (DB pool, Client Registry, WS bridge,
// Broadcaster, Executor, Shutdown handle, in that order) and returns a
// Host ready to Serve. The Event Broadcaster backend is chosen from cfg: a
// NATS broadcaster when cfg.NATS.URL is set, otherwise a WebSocket
// broadcaster delegating to the Client Registry created just before it.
func New(cfg *coreconfig.Config, log *corelog.Logger) (*Host, error) {
	pool, err := persistence.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open persistence pool: %w", err)
	}

	registry := wsgateway.NewRegistry(log)
	bridge := wsgateway.NewBridge(registry, log)

	var broadcaster coreevents.Broadcaster
	if cfg.NATS.URL != "" {
		nb, err := coreevents.NewNATSBroadcaster(coreevents.NATSConfig{
			URL:           cfg.NATS.URL,
			ClientID:      cfg.NATS.ClientID,
			MaxReconnects: cfg.NATS.MaxReconnects,
		}, log)
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		broadcaster = nb
	} else {
		broadcaster = coreevents.NewWebSocketBroadcaster(registry)
	}

	sinkFactory := func(id string) process.Sink {
		return process.NewEventSink(broadcaster)
	}
	publishStatus := func(id string, state process.State, exitCode *int) {
		event := coreevents.NewProcessStatus(id, coreevents.ProcessState(state), exitCode)
		_ = broadcaster.Publish(context.Background(), event)
	}
	executor := process.NewExecutor(sinkFactory, publishStatus)

	return &Host{
		cfg:         cfg,
		logger:      log,
		Pool:        pool,
		Broadcaster: broadcaster,
		Executor:    executor,
		Registry:    registry,
		Bridge:      bridge,
		Shutdown:    shutdown.New(),
	}, nil
}

func (h *Host) router() *gin.Engine {
	if h.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "agentcore"})
	})

	router.GET("/ws", func(c *gin.Context) {
		if err := h.Bridge.ServeUpgrade(c.Request.Context(), c.Writer, c.Request); err != nil {
			h.logger.Error("websocket upgrade failed", zap.Error(err))
		}
	})

	return router
}

// Serve binds the listener, installs routes, and blocks until the
// Shutdown Coordinator triggers, then runs the strictly-ordered shutdown
// sequence of spec.md §4.11.
func (h *Host) Serve() error {
	h.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", h.cfg.Server.Host, h.cfg.Server.Port),
		Handler:      h.router(),
		ReadTimeout:  h.cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: h.cfg.Server.WriteTimeoutDuration(),
	}

	serveErr := make(chan error, 1)
	go func() {
		h.logger.Info("server listening", zap.String("addr", h.httpServer.Addr))
		if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-h.Shutdown.Done():
	}

	return h.shutdownSequence()
}

// shutdownSequence implements spec.md §4.11 steps 2-6 in order.
func (h *Host) shutdownSequence() error {
	h.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.cfg.Server.ShutdownTimeoutDuration())
	defer cancel()

	// 2. Stop accepting new HTTP upgrades.
	if err := h.httpServer.Shutdown(shutdownCtx); err != nil {
		h.logger.Error("http server shutdown error", zap.Error(err))
	}

	// 3. Every live client receives exactly one Shutdown frame (I7).
	disconnected := h.Registry.DisconnectAll("Server is shutting down")
	h.logger.Info("disconnected clients", zap.Int("count", disconnected))

	// 4. Every live child is killed; pumps observe EOF or the cancel flag.
	h.Executor.KillAll()
	h.Executor.CloseAll(h.cfg.Server.ShutdownTimeoutDuration())

	// 5. Close the persistence pool.
	if err := h.Pool.Close(); err != nil {
		h.logger.Error("persistence pool close error", zap.Error(err))
	}
	if err := h.Broadcaster.Close(); err != nil {
		h.logger.Error("broadcaster close error", zap.Error(err))
	}

	h.logger.Info("shutdown complete")
	return nil
}

// Close is a synonym kept for symmetry with other components' lifecycle
// methods; Serve already runs the full shutdown sequence internally.
func (h *Host) Close() {
	h.Shutdown.Trigger()
}
