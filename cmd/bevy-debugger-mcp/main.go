// Command bevy-debugger-mcp runs the debug session runtime: it connects
// to a running game's inspection endpoint, serves the six debugging
// tools over a line-delimited JSON-RPC tool channel, and owns the
// replay/recording subsystem.
//
// Exit codes (§6): 0 clean, 1 fatal startup error, 2 unrecoverable
// runtime error.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/budget"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/cache"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/config"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/dispatcher"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/gameconn"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/handlers"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/mcp"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/obslog"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/replay"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/state"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bevy-debugger-mcp: config: %v\n", err)
		return 1
	}

	logger := obslog.New(cfg.LogLevel, os.Stderr)

	conn := gameconn.NewManager(gameconn.Config{
		Host:                  cfg.GameHost,
		Port:                  cfg.GamePort,
		MaxReconnectAttempts:  cfg.MaxReconnectAttempts,
	}, nil, logger.With().Str("component", "gameconn").Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn.Start(ctx)
	defer conn.Close()

	cacheSvc := cache.New(cfg.CacheMaxEntries)
	monitor := budget.New(budget.Config{
		Budgets: map[model.ToolName]budget.Budget{
			model.ToolObserve:       {Soft: time.Duration(cfg.BudgetObserveHardMs/2) * time.Millisecond, Hard: time.Duration(cfg.BudgetObserveHardMs) * time.Millisecond},
			model.ToolExperiment:    {Soft: time.Duration(cfg.BudgetExperimentHardMs/2) * time.Millisecond, Hard: time.Duration(cfg.BudgetExperimentHardMs) * time.Millisecond},
			model.ToolStressTest:    {Soft: time.Duration(cfg.BudgetStressHardMs/2) * time.Millisecond, Hard: time.Duration(cfg.BudgetStressHardMs) * time.Millisecond},
			model.ToolReplay:        {Soft: time.Duration(cfg.BudgetReplayFrameHardMs/2) * time.Millisecond, Hard: time.Duration(cfg.BudgetReplayFrameHardMs) * time.Millisecond},
		},
		SampleRingSize:   cfg.BudgetSampleRing,
		ViolationRing:    cfg.BudgetViolationRing,
		Cooldown:         time.Duration(cfg.BudgetCooldownSeconds) * time.Second,
	})

	disp, err := dispatcher.New(dispatcher.Config{
		QueueDepth:      cfg.DispatcherQueueDepth,
		DefaultDeadline: cfg.DefaultDeadline,
	}, cacheSvc, monitor, logger.With().Str("component", "dispatcher").Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "bevy-debugger-mcp: dispatcher: %v\n", err)
		return 1
	}

	storage := replay.NewStorage()
	engine := replay.NewEngine(storage, replay.RecorderConfig{
		KeyframeInterval:       cfg.KeyframeInterval,
		HighWaterMark:          cfg.RecorderHighWater,
		CoalesceOnBackpressure: true,
	}, replay.DefaultSpeedBounds(), logger.With().Str("component", "replay").Logger())

	game := handlers.NewGameClient(conn)
	experimentHandler := handlers.NewExperimentHandler(game)

	disp.Register(model.ToolObserve, handlers.NewObserveHandler(game, cacheSvc))
	disp.Register(model.ToolExperiment, experimentHandler)
	disp.Register(model.ToolStressTest, handlers.NewStressHandler(game))
	disp.Register(model.ToolDetectAnomaly, handlers.NewAnomalyHandler(game))
	disp.Register(model.ToolHypothesis, handlers.NewHypothesisHandler(experimentHandler))
	disp.Register(model.ToolReplay, handlers.NewReplayHandler(engine, game))

	schemas, err := dispatcher.ToolSchemas()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bevy-debugger-mcp: tool schemas: %v\n", err)
		return 1
	}

	resources := &mcp.DebugResources{Conn: conn, Monitor: monitor}
	server := mcp.NewServer(disp, schemas, resources, logger.With().Str("component", "mcp").Logger())

	if cfg.ToolChannelPort > 0 {
		return serveTCP(ctx, server, cfg.ToolChannelPort, logger)
	}
	return serveStdio(ctx, server, logger)
}

func loadConfig() (config.Config, error) {
	configPath, err := state.ConfigFile()
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(configPath, nil)
}

func serveStdio(ctx context.Context, server *mcp.Server, logger zerolog.Logger) int {
	if err := server.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error().Err(err).Msg("tool channel terminated")
		return 2
	}
	return 0
}

func serveTCP(ctx context.Context, server *mcp.Server, port int, logger zerolog.Logger) int {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "bevy-debugger-mcp: listen: %v\n", err)
		return 1
	}
	defer ln.Close()

	if err := server.ServeTCP(ctx, ln); err != nil {
		logger.Error().Err(err).Msg("tool channel terminated")
		return 2
	}
	return 0
}
