package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mdblp/interval-sync/agent"
)

const agentPrefix = "agent "

var (
	// Version info (set by ldflags)
	version = "dev"

	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "interval-agent",
		Short: "Five minutes interval sync agent",
		Long: `interval-agent reads today's health samples from the device bridge,
condenses them into five minutes intervals and sends them to the interval-sync service.

  interval-agent run     Run the periodic sync in foreground
  interval-agent sync    Run one sync cycle and exit`,
		Version: version,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file path (default ~/.config/interval-agent/config.yaml)")
	flags.StringSlice("endpoints", nil, "service base urls, probed in order")
	flags.String("source-url", "", "device bridge base url")
	flags.String("user-id", "", "user the intervals belong to")
	flags.Duration("interval", 0, "time between two periodic syncs")
	flags.String("log-file", "", "also write the logs to this rotated file")

	rootCmd.AddCommand(newRunCmd(), newSyncCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the periodic sync in foreground",
		Long: `Initialize the data source, sync immediately then every interval.
SIGCONT resumes (sync if the last success is too old), SIGUSR1 forces a sync,
SIGINT and SIGTERM stop after the running cycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForeground(cmd)
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd)
		},
	}
}

// newLogger writes to stdout, and to a rotated file when logFile is set
func newLogger(logFile string) (*log.Logger, io.Closer) {
	if logFile == "" {
		return log.New(os.Stdout, agentPrefix, log.LstdFlags|log.Lshortfile), io.NopCloser(nil)
	}
	logWriter := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}
	return log.New(io.MultiWriter(os.Stdout, logWriter), agentPrefix, log.LstdFlags|log.Lshortfile), logWriter
}

type components struct {
	logger    *log.Logger
	closer    io.Closer
	scheduler *agent.Scheduler
}

func setup(cmd *cobra.Command) (*components, error) {
	cfg, err := LoadConfig(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	defs, err := cfg.MetricDefinitions()
	if err != nil {
		return nil, err
	}
	logger, closer := newLogger(cfg.LogFile)

	source := agent.NewHTTPDataSource(cfg.SourceURL, cfg.ReadTimeout)
	resolver := agent.NewEndpointResolver(cfg.Endpoints, cfg.ProbeTimeout, logger)
	submitter := agent.NewSubmitter(cfg.SubmitTimeout)
	syncer := agent.NewSyncer(source, resolver, submitter, agent.SyncerConfig{
		Metrics:      defs,
		UserID:       cfg.UserID,
		DeviceSource: cfg.DeviceSource,
		ReadTimeout:  cfg.ReadTimeout,
	}, logger)
	scheduler := agent.NewScheduler(source, syncer, agent.SchedulerConfig{
		Interval:        cfg.Interval,
		ResumeThreshold: cfg.ResumeThreshold,
		RecordTypes:     syncer.RecordTypes(),
	}, logger)

	logger.Printf("interval-agent %s, source %s, endpoints %v", version, cfg.SourceURL, cfg.Endpoints)
	return &components{logger: logger, closer: closer, scheduler: scheduler}, nil
}

func runForeground(cmd *cobra.Command) error {
	c, err := setup(cmd)
	if err != nil {
		return err
	}
	defer c.closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting the scheduler: %w", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGCONT, syscall.SIGUSR1)
	defer signal.Stop(sigc)
	for sig := range sigc {
		switch sig {
		case syscall.SIGCONT:
			if c.scheduler.Resume(ctx) {
				c.logger.Println("Resumed, sync started")
			}
		case syscall.SIGUSR1:
			go func() {
				if err := c.scheduler.TriggerNow(ctx); err != nil {
					c.logger.Printf("Manual sync: %s", err)
				}
			}()
		default:
			c.logger.Printf("Received signal %v, shutting down...", sig)
			c.scheduler.Stop()
			cancel()
			status := c.scheduler.Status()
			c.logger.Printf("%d cycles, %d dropped triggers, last success %s", status.Cycles, status.DroppedTriggers, status.LastSuccess.Format("15:04:05"))
			return nil
		}
	}
	return nil
}

func runOnce(cmd *cobra.Command) error {
	c, err := setup(cmd)
	if err != nil {
		return err
	}
	defer c.closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer c.scheduler.Stop()
	if err := c.scheduler.Initialize(ctx); err != nil {
		return err
	}
	return c.scheduler.TriggerNow(ctx)
}
