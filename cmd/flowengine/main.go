// Command flowengine runs the durable workflow engine: it loads
// configuration, wires the configured store and broker backends, starts
// the trigger-sweep ticker, and serves Prometheus metrics until
// interrupted.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tailored-agentic-units/flow/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flowengine",
	Short: "A durable, event-driven workflow engine for task DAGs.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine: trigger ticker, broker subscriptions, and a metrics server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := NewApp(cfg)
		if err != nil {
			return fmt.Errorf("build app: %w", err)
		}
		return app.Run(cmd.Context())
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single due-trigger sweep and exit, for cron-style invocation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := NewApp(cfg)
		if err != nil {
			return fmt.Errorf("build app: %w", err)
		}
		return app.TickOnce(cmd.Context())
	},
}

func loadConfig() (*config.EngineConfig, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if addr := viper.GetString("metrics_addr"); addr != "" {
		cfg.MetricsAddr = addr
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML/JSON config file")
	rootCmd.PersistentFlags().String("metrics-addr", "", "override metrics_addr from config")
	if err := viper.BindPFlag("metrics_addr", rootCmd.PersistentFlags().Lookup("metrics-addr")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(runCmd, tickCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("flowengine exited with error", "error", err)
		os.Exit(1)
	}
}
