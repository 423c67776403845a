// Command bookfeed posts book recommendations to a Telegram chat.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/bookfeed/internal/config"
	"github.com/drallgood/bookfeed/internal/logger"
	"github.com/drallgood/bookfeed/internal/scheduler"
	"github.com/drallgood/bookfeed/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Get().Error("bookfeed failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "bookfeed",
		Usage:   "Post bestsellers and community reading picks to Telegram",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` if it exists",
				Value: ".env",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Log messages instead of sending them",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Delivery mode for every job: download or link",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: json or console",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run one job now and exit",
				ArgsUsage: "bestsellers|thread|digest",
				Action:    runJob,
			},
			{
				Name:   "serve",
				Usage:  "Run jobs on their schedules and serve the HTTP trigger",
				Action: serve,
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "bookfeed version %s (commit %s, built %s)\n", version, commit, date)
					return nil
				},
			},
		},
	}
}

// loadConfig reads configuration and applies global flags, which take precedence over everything else
func loadConfig(c *cli.Context) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(c.String("config"), c.String("env-file"))
	if err != nil {
		return nil, nil, err
	}
	applyFlags(c, cfg)

	logger.Setup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     logger.ParseLogFormat(cfg.Logging.Format),
		TimeFormat: time.RFC3339,
	})
	log := logger.Get()
	log.Info("Configuration loaded", cfg.Redacted())
	return cfg, log, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("dry-run") {
		cfg.App.DryRun = c.Bool("dry-run")
	}
	if c.IsSet("mode") {
		cfg.Delivery.Mode = c.String("mode")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
}

func runJob(c *cli.Context) error {
	job := c.Args().First()
	if job == "" {
		return cli.Exit("missing job name: bestsellers, thread or digest", 2)
	}

	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return jobFunc(cfg, log)(ctx, job)
}

func serve(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	schedules := map[string]string{
		config.JobBestsellers: cfg.Schedule.Bestsellers,
		config.JobThread:      cfg.Schedule.Thread,
		config.JobDigest:      cfg.Schedule.Digest,
	}
	for job, spec := range schedules {
		if spec == "" {
			continue
		}
		if err := cfg.ValidateJob(job); err != nil {
			return fmt.Errorf("job %s is scheduled but not configured: %w", job, err)
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := scheduler.NewRunner(jobFunc(cfg, log), config.Jobs, log)
	sched, err := scheduler.New(runner, schedules, loc, log)
	if err != nil {
		return err
	}
	sched.Start(ctx)

	srv := server.New(ctx, ":"+cfg.Server.Port, runner, config.Jobs, log)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err = <-errCh:
		if err != nil {
			log.Error("HTTP server stopped", map[string]interface{}{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	log.Info("Shutting down", map[string]interface{}{
		"timeout": cfg.Server.ShutdownTimeout.String(),
	})
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) {
		log.Error("HTTP server shutdown failed", map[string]interface{}{"error": shutdownErr.Error()})
	}
	stop()
	sched.Stop()

	log.Info("Shutdown completed")
	return err
}
