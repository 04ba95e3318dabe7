package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quickledger/quickledger/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	serveCmd.Flags().String("host", "", "Listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides config)")
	serveCmd.Flags().Bool("no-import", false, "Do not run the import executor")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the import executor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.Server.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}
		if off, _ := cmd.Flags().GetBool("no-import"); off {
			cfg.Import.Enabled = false
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		d, err := daemon.New(cmd.Context(), cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer d.Close()
		err = d.Serve(cmd.Context(), Version)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// ─── config ─────────────────────────────────────────────────────────────────

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := daemon.WriteDefault(configPath); err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "wrote %s", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		table := newTable(w, "Setting", "Value")
		table.AppendBulk([][]string{
			{"server", cfg.Server.Addr()},
			{"storage", cfg.Storage.Dir},
			{"school", cfg.Institution.SchoolName},
			{"default semester", cfg.Institution.DefaultSemesterCode},
			{"lock", cfg.Lock.Backend},
			{"import", fmt.Sprintf("enabled=%t workers=%d batch=%d every %s",
				cfg.Import.Enabled, cfg.Import.Workers, cfg.Import.BatchSize, cfg.Import.Interval)},
			{"log", cfg.Log.Level + "/" + cfg.Log.Format},
			{"metrics", fmt.Sprint(cfg.Metrics.Enabled)},
		})
		table.Render()
		return nil
	},
}
