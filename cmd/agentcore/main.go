// Command agentcore runs the Process & Event Core as a standalone
// WebSocket server — spawn, supervise, and stream PTY/pipe-backed
// processes to any number of subscribed clients.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kandev/agentcore/internal/coreconfig"
	"github.com/kandev/agentcore/internal/corelog"
	"github.com/kandev/agentcore/internal/server"
)

func main() {
	cfg, err := coreconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := corelog.New(corelog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	corelog.SetDefault(log)

	log.Info("starting agentcore")

	host, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to wire server", zap.Error(err))
		os.Exit(1)
	}

	stopSignals := host.Shutdown.WatchSignals()
	defer stopSignals()

	if err := host.Serve(); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("agentcore stopped")
}
