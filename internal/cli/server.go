package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kumasuke/fakes3/internal/config"
	"github.com/kumasuke/fakes3/internal/server"
)

// serverOptions holds the server command's flags. Zero values leave the loaded config alone.
type serverOptions struct {
	configFile string
	port       int
	dataDir    string
	address    string
	logLevel   string
}

// NewServerCmd creates the server command.
func NewServerCmd() *cobra.Command {
	opts := &serverOptions{}
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the S3-compatible server",
		Long:  "Start the FakeS3 server that serves the S3 API from a local directory.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file path")
	flags.IntVarP(&opts.port, "port", "p", 0, "server port (default 10001)")
	flags.StringVarP(&opts.dataDir, "data-dir", "d", "", "data directory (default $HOME/s3store)")
	flags.StringVar(&opts.address, "address", "", "listen address (default 0.0.0.0)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

func (o *serverOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFromFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if o.port != 0 {
		cfg.Server.Port = o.port
	}
	if o.dataDir != "" {
		cfg.Storage.DataDir = o.dataDir
	}
	if o.address != "" {
		cfg.Server.Address = o.address
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (o *serverOptions) run(ctx context.Context) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging, os.Stderr)

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	log.Info().
		Str("address", cfg.Server.Address).
		Int("port", cfg.Server.Port).
		Str("data_dir", cfg.Storage.DataDir).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("FakeS3 ready")

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
		return srv.Shutdown()
	}
}

func setupLogging(cfg config.LoggingConfig, out io.Writer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
		return
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
