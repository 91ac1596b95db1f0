// Package main is the CLI entry point for bastiond.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/control"
	"github.com/bastionhq/bastion/internal/coordinator"
	"github.com/bastionhq/bastion/internal/infra"
	"github.com/bastionhq/bastion/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bastiond",
	Short: "Focus enforcement daemon - blocks distracting sites and apps",
	Long: `bastiond enforces focus sessions: while a session runs, blocked
websites are intercepted and blocked applications are terminated.

Hardcore sessions cannot be stopped early without the master secret.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Runs the enforcement loop, the intercept sentinel and the control
API until interrupted. Site blocking edits the hosts file, which
usually needs elevated privileges.`,
	RunE: runDaemon,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default <data dir>/config.yaml)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(pomodoroCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(processesCmd)
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(config.Default().DataDir, "config.yaml")
	}
	return config.Load(path)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := createLogger(cfg.LogFile)
	defer func() { _ = logger.Sync() }()

	logger.Info("bastiond starting",
		zap.String("version", Version),
		zap.String("data_dir", cfg.DataDir))

	key, err := infra.EnsureStoreKey(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to prepare store key: %w", err)
	}
	store, err := infra.NewStore(cfg.DataDir, key)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	clock := infra.NewSystemClock()
	verifier := usecase.NewArgon2Verifier(store)
	processes := infra.NewProcessManager()

	hostsPath := cfg.HostsPath
	if hostsPath == "" {
		hostsPath = infra.DefaultHostsPath()
	}
	hosts := infra.NewHostsManager(hostsPath, logger)
	if !hosts.Writable() {
		logger.Warn("hosts file not writable, site blocking degraded",
			zap.String("path", hostsPath))
	}
	apps := infra.NewAppApplier(processes, logger)

	session := usecase.NewSessionMachine(clock, verifier, store, logger)
	if err := session.Restore(); err != nil {
		logger.Warn("session restore failed", zap.Error(err))
	}

	phaseConfig := cfg.PhaseConfig()
	if persisted, err := store.LoadPhaseConfig(); err != nil {
		logger.Warn("phase config load failed", zap.Error(err))
	} else if persisted != nil {
		phaseConfig = *persisted
	}
	phase := usecase.NewPhaseMachine(phaseConfig, session.HardcoreLocked, store, logger)

	driver := usecase.NewEnforcementDriver(hosts, apps, clock, cfg.EnforceTimeout.Std(), logger)

	var sentinel *infra.Sentinel
	if cfg.Sentinel.Enabled {
		sentinel = infra.NewSentinel(cfg.Sentinel.HTTPPort, cfg.Sentinel.TLSPort, clock, logger)
	}

	coordConfig := coordinator.Config{
		TickInterval:  cfg.TickInterval.Std(),
		DedupCooldown: cfg.DedupCooldown.Std(),
	}
	var drainer coordinator.Drainer
	if sentinel != nil {
		drainer = sentinel
	}
	coord := coordinator.New(coordConfig, clock, session, phase,
		driver, store, hosts, drainer, store, store, logger)

	server := control.NewServer(coord, store, store, store, verifier, processes, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runFile := infra.NewRunFile(cfg.DataDir)
	if err := runFile.Write(infra.RunState{
		PID:         os.Getpid(),
		ControlAddr: cfg.ControlAddr,
		Version:     Version,
	}); err != nil {
		logger.Warn("failed to write run file", zap.Error(err))
	}
	defer func() {
		if err := runFile.Clear(); err != nil {
			logger.Warn("failed to clear run file", zap.Error(err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(ctx) })
	g.Go(func() error { return server.ListenAndServe(ctx, cfg.ControlAddr) })
	if sentinel != nil {
		g.Go(func() error {
			sentinel.Run(ctx)
			return nil
		})
	}

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		logger.Error("daemon stopped", zap.Error(err))
		return err
	}
	logger.Info("bastiond stopped")
	return nil
}

// createLogger builds a production file logger when a log file is
// configured, and a console logger otherwise.
func createLogger(logFile string) *zap.Logger {
	if logFile == "" {
		logger, err := zap.NewDevelopment()
		if err != nil {
			logger, _ = zap.NewProduction()
		}
		return logger
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{logFile}
	cfg.ErrorOutputPaths = []string{logFile}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		out, _ := json.Marshal(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		fmt.Println(string(out))
		return
	}
	fmt.Printf("bastiond %s (commit %s, built %s)\n", Version, Commit, BuildTime)
}
