// Package main implements the voxd daemon: the voice-driven coding
// assistant orchestrator. It wires the router, executor factory, session
// store, summarizer and monitor into the core state machine and exposes it
// over NATS and HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/config"
	"github.com/fyrsmithlabs/voxd/internal/core"
	"github.com/fyrsmithlabs/voxd/internal/executor"
	"github.com/fyrsmithlabs/voxd/internal/logging"
	"github.com/fyrsmithlabs/voxd/internal/monitor"
	"github.com/fyrsmithlabs/voxd/internal/protocol"
	"github.com/fyrsmithlabs/voxd/internal/redact"
	"github.com/fyrsmithlabs/voxd/internal/router"
	"github.com/fyrsmithlabs/voxd/internal/store"
	"github.com/fyrsmithlabs/voxd/internal/summarizer"
	"github.com/fyrsmithlabs/voxd/internal/telemetry"
	"github.com/fyrsmithlabs/voxd/internal/transport"
)

var version = "dev"

var (
	flagConfig    string
	flagNoConfirm bool
	flagWorkdir   string
	flagExecutor  string
	flagNATSURL   string
	flagHTTPAddr  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "voxd [text...]",
	Short: "Voice-driven coding assistant orchestrator",
	Long: `voxd routes free-form requests through a language-model router into a
command plan, asks for confirmation, and hands the plan to a long-running
coding agent whose output is relayed to observers over NATS and HTTP.

Free-text arguments are joined into an initial user message:

  voxd fix the failing login test`,
	Version: version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "config file path (default ~/.config/voxd/config.yaml)")
	rootCmd.Flags().BoolVar(&flagNoConfirm, "no-confirm", false, "launch executors without asking for confirmation")
	rootCmd.Flags().StringVar(&flagWorkdir, "workdir", "", "working directory handed to executors")
	rootCmd.Flags().StringVar(&flagExecutor, "executor", "", "executor backend: claude or mock")
	rootCmd.Flags().StringVar(&flagNATSURL, "nats-url", "", "NATS server URL")
	rootCmd.Flags().StringVar(&flagHTTPAddr, "http-addr", "", "HTTP listen address")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.Version = version
	provider, err := telemetry.Init(ctx, cfg.Observability, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()
	logger = logging.AttachOTEL(logger, provider.LoggerProvider())

	execType, err := executor.ParseType(cfg.Orchestrator.Executor)
	if err != nil {
		return err
	}

	factory := executor.NewCLIFactory(logger.Named("executor"))
	if !factory.IsAvailable(execType) {
		logger.Warn("configured executor is not available on this host",
			zap.String("executor", string(execType)))
	}

	fileStore, err := store.NewFileStore(cfg.Store.Root, logger.Named("store"))
	if err != nil {
		return err
	}

	routerSvc, err := router.New(router.Config{
		BaseURL:           cfg.Router.BaseURL,
		Model:             cfg.Router.Model,
		APIKey:            cfg.Router.APIKey.Value(),
		Timeout:           cfg.Router.Timeout.Duration(),
		RequestsPerSecond: cfg.Router.RequestsPerSecond,
		Temperature:       cfg.Router.Temperature,
	}, logger.Named("router"))
	if err != nil {
		return err
	}

	var bus *transport.Bus
	var outbound core.Outbound = &logOutbound{logger: logger.Named("outbound")}
	if cfg.NATS.Enabled {
		bus, err = transport.NewBus(cfg.NATS, logger.Named("nats"))
		if err != nil {
			return err
		}
		defer bus.Close()
		outbound = bus
	}

	if cfg.Orchestrator.RedactOutput {
		redactor, err := redact.New()
		if err != nil {
			return err
		}
		outbound = redact.WrapOutbound(outbound, redactor, logger.Named("redact"))
	}

	orch, err := core.New(
		routerSvc,
		factory,
		outbound,
		fileStore,
		summarizer.New(logger.Named("summarizer")),
		monitor.New(logger.Named("monitor")),
		core.Options{
			SkipConfirmation: !cfg.Orchestrator.RequireConfirmation,
			ExecutorType:     execType,
			WorkingDir:       cfg.Orchestrator.WorkingDir,
			UserID:           cfg.Orchestrator.UserID,
			RouteTimeout:     cfg.Orchestrator.RouteTimeout.Duration(),
			LaunchTimeout:    cfg.Orchestrator.LaunchTimeout.Duration(),
			StoreTimeout:     cfg.Orchestrator.StoreTimeout.Duration(),
		},
		logger.Named("core"),
	)
	if err != nil {
		return err
	}

	dispatcher := core.NewDispatcher(orch, 0, logger.Named("dispatch"))

	if bus != nil {
		if err := bus.SubscribeInbound(dispatcher.Enqueue); err != nil {
			return err
		}
	}

	var httpSrv *transport.Server
	if cfg.HTTP.Enabled {
		httpSrv, err = transport.NewServer(cfg.HTTP.Addr, dispatcher.Enqueue, fileStore, logger.Named("http"))
		if err != nil {
			return err
		}
		go func() {
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	// Free-text arguments become the first routable user message.
	if len(args) > 0 {
		dispatcher.Enqueue(protocol.UserText(strings.Join(args, " "), "cli", true))
	}

	logger.Info("voxd started",
		zap.String("executor", string(execType)),
		zap.Bool("require_confirmation", cfg.Orchestrator.RequireConfirmation),
		zap.String("workdir", cfg.Orchestrator.WorkingDir))

	err = dispatcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("voxd stopped")
		return nil
	}
	return err
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if flagNoConfirm {
		cfg.Orchestrator.RequireConfirmation = false
	}
	if flagWorkdir != "" {
		cfg.Orchestrator.WorkingDir = flagWorkdir
	}
	if flagExecutor != "" {
		cfg.Orchestrator.Executor = flagExecutor
	}
	if flagNATSURL != "" {
		cfg.NATS.URL = flagNATSURL
		cfg.NATS.Enabled = true
	}
	if flagHTTPAddr != "" {
		cfg.HTTP.Addr = flagHTTPAddr
		cfg.HTTP.Enabled = true
	}
	_ = cmd
}

// logOutbound delivers outbound messages to the log only. Used when the
// NATS transport is disabled.
type logOutbound struct {
	logger *zap.Logger
}

func (o *logOutbound) Deliver(_ context.Context, msg protocol.Message) error {
	o.logger.Info("outbound",
		zap.String("kind", string(msg.Kind)),
		zap.String("text", msg.Text),
		zap.String("reason", msg.Reason),
		zap.String("session_id", msg.SessionID))
	return nil
}
