package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/vigil/internal/config"
	"github.com/dshills/vigil/internal/ledger"
	"github.com/dshills/vigil/internal/logging"
	"github.com/dshills/vigil/internal/monitor"
	"github.com/dshills/vigil/internal/notify"
	"github.com/dshills/vigil/internal/providers"
	"github.com/dshills/vigil/internal/review"
	"github.com/dshills/vigil/internal/svn"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "config.yaml"

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return defaultConfigPath
}

// components is the wired object graph shared by serve and review.
type components struct {
	cfg    config.Config
	log    *zap.Logger
	ledger *ledger.Ledger
	source *svn.Client
	review *review.Adapter
	notify *notify.Bot
}

func buildComponents() (*components, error) {
	cfg, err := config.Load(configPath(), nil)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	led, err := ledger.Open(cfg.Ledger.Path, cfg.Ledger.LegacyPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	source, err := svn.NewClient(svn.Options{
		RepositoryURL:  cfg.SVN.RepositoryURL,
		Username:       cfg.SVN.Username,
		Password:       cfg.SVN.Password,
		MonitoredPaths: cfg.SVN.MonitoredPaths,
		CommandTimeout: cfg.SVN.CommandTimeout,
	})
	if err != nil {
		return nil, err
	}

	provider, err := providers.NewOpenAI(cfg.AI.APIBase, cfg.AI.APIKey, cfg.AI.Model)
	if err != nil {
		return nil, err
	}
	adapter := review.NewAdapter(provider, cfg.AI, log)
	bot := notify.NewBot(cfg, log)

	return &components{
		cfg:    cfg,
		log:    log,
		ledger: led,
		source: source,
		review: adapter,
		notify: bot,
	}, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the commit monitor daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildComponents()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		defer func() { _ = c.log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := monitor.New(c.cfg, c.ledger, c.source, c.review, c.notify, c.log)
		c.log.Info("vigil starting",
			zap.String("repository", c.cfg.SVN.RepositoryURL),
			zap.Duration("check_interval", c.cfg.SVN.CheckInterval),
			zap.Bool("webhook", c.cfg.Webhook.Enabled))

		if err := m.Run(ctx); err != nil {
			c.log.Error("monitor stopped", zap.Error(err))
			exitCode = ExitRuntimeError
			return nil
		}
		c.log.Info("vigil stopped")
		return nil
	},
}
