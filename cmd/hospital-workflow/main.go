package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/config"
	"github.com/harshangpate/hospital-crm/internal/container"
	"github.com/harshangpate/hospital-crm/internal/domain/workflow"
	"github.com/harshangpate/hospital-crm/pkg/utils"
)

var version = "dev"

var (
	configPath string
	envFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hospital-workflow",
		Short: "Workflow status engine for lab, radiology, admission and surgery orders",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional KEY=VALUE file loaded before the config")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tablesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("Starting hospital workflow service",
				zap.String("version", version),
				zap.String("addr", cfg.Addr()),
				zap.String("failure_policy", string(cfg.FailurePolicy())))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := container.NewContainer(cfg, logger, version)
			if err != nil {
				return err
			}
			if err := c.Start(ctx); err != nil {
				logger.Error("Failed to start", zap.Error(err))
				return err
			}

			serveErr := c.Serve(ctx)
			if serveErr != nil {
				logger.Error("HTTP server stopped with error", zap.Error(serveErr))
			}

			logger.Info("Shutting down...")
			if err := c.Close(); err != nil {
				return err
			}
			logger.Info("Service exited")
			return serveErr
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			return container.Migrate(cfg, logger)
		},
	}
}

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables [entity-type]",
		Short: "Print the status transition tables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := workflow.Tables()
			if len(args) == 1 {
				t, err := workflow.ParseEntityType(args[0])
				if err != nil {
					return err
				}
				table, err := workflow.TableFor(t)
				if err != nil {
					return err
				}
				tables = []workflow.Table{table}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, table := range tables {
				fmt.Fprintf(w, "%s (initial %s)\n", table.EntityType(), table.Initial())
				for _, tr := range table.Transitions() {
					fmt.Fprintf(w, "  %s\t--%s-->\t%s\n", tr.From, tr.Trigger, tr.To)
				}
				fmt.Fprintln(w)
			}
			return w.Flush()
		},
	}
}
