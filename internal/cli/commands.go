// Package cli defines the tradedesk command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/tradedesk/internal/app"
	"github.com/alanyoungcy/tradedesk/internal/config"
	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/filter"
	"github.com/alanyoungcy/tradedesk/internal/service"
	"github.com/alanyoungcy/tradedesk/internal/session"
	"github.com/alanyoungcy/tradedesk/internal/store/postgres"
	"github.com/alanyoungcy/tradedesk/internal/store/seed"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "tradedesk",
		Short:         "Trading back-office position desk",
		Long:          "tradedesk serves the position, pending order and closed trade tables of a trading back office and drives the edit and close workflow.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.toml", "Configuration file path (empty for defaults)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log_level from the configuration")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newTableCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newSeedCmd(opts))

	return rootCmd
}

// load reads and validates the configuration. A missing default config file
// falls back to the built-in defaults.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	path := o.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the JSON logger at the configured level.
func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l}))
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stdout, cfg.LogLevel)
			slog.SetDefault(logger)

			application := app.New(cfg, logger)
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("application exited with error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("tradedesk stopped")
			return nil
		},
	}
}

// tableFlags hold the view state applied before rendering.
type tableFlags struct {
	query    string
	filters  map[string]string
	page     int
	pageSize int
	hide     []string
}

func newTableCmd(opts *options) *cobra.Command {
	tf := &tableFlags{}
	cmd := &cobra.Command{
		Use:       "table <positions|pending|closed|activity>",
		Short:     "Render one page of a table to the terminal",
		Example:   "  tradedesk table positions --filter risk=high --page 2\n  tradedesk table closed --query eurusd --hide deviceInfo",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{view.TablePositions, view.TablePending, view.TableClosed, view.TableActivity},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), "error")
			t, err := renderTable(cmd.Context(), cfg, logger, args[0], tf)
			if err != nil {
				return err
			}
			return view.Render(cmd.OutOrStdout(), t)
		},
	}
	cmd.Flags().StringVarP(&tf.query, "query", "q", "", "Free-text search")
	cmd.Flags().StringToStringVarP(&tf.filters, "filter", "f", nil, "Discrete filter, e.g. risk=high (repeatable)")
	cmd.Flags().IntVarP(&tf.page, "page", "p", 1, "Page to show")
	cmd.Flags().IntVar(&tf.pageSize, "page-size", 0, "Rows per page (5, 10, 25, 50, 100)")
	cmd.Flags().StringSliceVar(&tf.hide, "hide", nil, "Column keys to hide")
	return cmd
}

// renderTable opens a session on the configured records and applies the
// flags to the named table in the order the dashboard would.
func renderTable(ctx context.Context, cfg *config.Config, logger *slog.Logger, name string, tf *tableFlags) (view.Table, error) {
	var src domain.RecordSource
	switch cfg.Records.Source {
	case "postgres":
		pg, err := openPostgres(ctx, cfg)
		if err != nil {
			return view.Table{}, err
		}
		defer pg.Close()
		src = postgres.NewRecordSource(pg.Pool())
	default:
		s, err := seed.Open(cfg.Records.SeedPath)
		if err != nil {
			return view.Table{}, err
		}
		src = s
	}

	mgr := session.NewManager(session.ManagerConfig{
		Source:      src,
		Collaborate: service.NewDesk(service.DeskConfig{Logger: logger}).Collaborators,
		PageSize:    cfg.Records.DefaultPageSize,
		Logger:      logger,
	})
	s, err := mgr.Create(ctx, "cli")
	if err != nil {
		return view.Table{}, err
	}

	if _, err := s.Table(name); err != nil {
		return view.Table{}, err
	}
	if tf.query != "" {
		if _, err := s.SetQuery(name, tf.query); err != nil {
			return view.Table{}, err
		}
	}
	if len(tf.filters) > 0 {
		if _, err := s.SetSelections(name, filter.Selections(tf.filters)); err != nil {
			return view.Table{}, err
		}
	}
	if tf.pageSize > 0 {
		if _, err := s.SetPageSize(name, tf.pageSize); err != nil {
			return view.Table{}, err
		}
	}
	for _, key := range tf.hide {
		if _, err := s.ToggleColumn(name, strings.TrimSpace(key)); err != nil {
			return view.Table{}, err
		}
	}
	return s.MovePage(name, session.PageGoTo, tf.page)
}

func newConfigCmd(opts *options) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			red := config.RedactedConfig(cfg)
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(red)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.load(cmd); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	})

	return configCmd
}

func newSeedCmd(opts *options) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import fixture records into PostgreSQL",
		Long:  "seed loads a fixtures file (or the embedded demo book) and writes every record to the postgres system of record, replacing what is there.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			src, err := seed.Open(path)
			if err != nil {
				return err
			}
			pg, err := openPostgres(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.RunMigrations(cmd.Context()); err != nil {
				return err
			}

			fx := src.Fixtures()
			if err := postgres.NewRecordSource(pg.Pool()).Import(cmd.Context(), fx.Active, fx.Pending, fx.Closed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d active, %d pending, %d closed\n",
				len(fx.Active), len(fx.Pending), len(fx.Closed))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Fixtures JSON file (embedded demo book when empty)")
	return cmd
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.Client, error) {
	return postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
}
